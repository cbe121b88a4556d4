// Copyright 2024 The vchain Authors
// This file is part of the vchain library.
//
// The vchain library is free software: you can redistribute it and/or modify
// it under the terms of the MIT Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The vchain library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// MIT Lesser General Public License for more details.
//
// You should have received a copy of the MIT Lesser General Public License
// along with the vchain library. If not, see <https://mit-license.org/>.

package sub

import (
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"vchain"
	"vchain/log"
	"vchain/node"
	"vchain/storage/badger"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	rpcaddr   string
	datadir   string
	forkURL   string
	forkBlock uint64
	chainID   uint64
	accounts  int
	debug     bool
	daemonCmd = &cobra.Command{
		Use:                   "daemon [options]",
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
		Short:                 "Start a vchain daemon process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	}
)

func safeclose(fn func() error) {
	if err := fn(); err != nil {
		panic(err)
	}
}

func resetConfig(config *daemonConfig) {
	if datadir != "" {
		setupDataDir(&config.storageParams, datadir)
	}
	if rpcaddr != "" {
		config.nodeConfig.RPCConfig.ListenAddr = rpcaddr
	}
	if forkURL != "" {
		config.forkParams.url = forkURL
	}
	if forkBlock != 0 {
		config.forkParams.blockNumber = forkBlock
	}
	if chainID != 0 {
		config.chainParams.chainID = chainID
	}
	if accounts > 0 {
		config.chainParams.accounts = accounts
	}
}

func runDaemon() error {
	config, err := parseDaemonConfig(cfgFile)
	if err != nil {
		return err
	}
	resetConfig(&config)
	loglevel, err := logrus.ParseLevel(config.loggerParams.level)
	if err != nil {
		return err
	}
	logrus.SetFormatter(&log.Formatter{})
	logrus.SetLevel(loglevel)
	if debug {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.Debugf("Set debug mode")
	}
	nodeConf := &config.nodeConfig
	nodeConf.RPCConfig.Logger = logrus.StandardLogger()
	stack, err := node.New(nodeConf)
	if err != nil {
		return err
	}

	genesis := vchain.DefaultGenesis()
	genesis.ChainID = config.chainParams.chainID
	genesis.GasLimit = config.chainParams.gasLimit
	genesis.DevBalance = new(big.Int).Set(config.chainParams.devBalance)
	genesis.Accounts = vchain.DeriveDevAccounts(config.chainParams.accounts)

	backendConf := &vchain.BackendConfig{
		Genesis:       genesis,
		StateCacheDir: config.storageParams.stateDir,
		Logger:        logrus.StandardLogger(),
	}
	if config.forkParams.url != "" {
		forkCache, err := badger.New(config.storageParams.forkCacheDir)
		if err != nil {
			return err
		}
		defer safeclose(forkCache.Close)
		backendConf.Fork = vchain.NewForkClient(
			config.forkParams.url,
			config.forkParams.blockNumber,
			forkCache,
			logrus.StandardLogger(),
		)
	}
	back := vchain.NewBackend(backendConf)
	stack.RegisterBackend(back)
	if err = stack.Start(); err != nil {
		return err
	}
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-c
	return nil
}

func init() {
	mFlags := daemonCmd.PersistentFlags()
	mFlags.StringVarP(&rpcaddr, "rpcaddr", "r", "", "Set JSON-RPC Service listen address")
	mFlags.StringVarP(&datadir, "datadir", "d", "", "Set Data directory")
	mFlags.StringVarP(&forkURL, "fork", "f", "", "Fork state from a remote endpoint")
	mFlags.Uint64VarP(&forkBlock, "fork-block", "", 0, "Pin the fork at a block number")
	mFlags.Uint64VarP(&chainID, "chainid", "n", 0, "Explicitly set chain id")
	mFlags.IntVarP(&accounts, "accounts", "a", 0, "Number of dev accounts to derive")
	mFlags.BoolVarP(&debug, "debug", "", false, "Enable debug")
	rootCmd.AddCommand(daemonCmd)
}
