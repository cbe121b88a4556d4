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
	"path/filepath"
	"strings"
	"vchain"
	"vchain/common"
	"vchain/node"

	"github.com/spf13/viper"
)

const (
	defaultConfigFile        = "./config.yml"
	defaultStorageDir        = ".vchain"
	defaultForkCacheDir      = "forkcache"
	defaultNodeRPCListenAddr = "127.0.0.1:8545"
	defaultLoggerLevel       = "INFO"
	defaultAccounts          = vchain.DefaultDevAccounts
)

type storageParams struct {
	dataDir      string
	forkCacheDir string
	stateDir     string
}

type loggerParams struct {
	level string
}

type chainParams struct {
	chainID    uint64
	gasLimit   uint64
	accounts   int
	devBalance *big.Int
}

type forkParams struct {
	url         string
	blockNumber uint64
}

type daemonConfig struct {
	loggerParams  loggerParams
	storageParams storageParams
	chainParams   chainParams
	forkParams    forkParams
	nodeConfig    node.Config
}

func readFromConfigPath(v *viper.Viper, customFile string) error {
	filename := filepath.Base(defaultConfigFile)
	ext := filepath.Ext(defaultConfigFile)
	configPath := filepath.Dir(defaultConfigFile)
	v.AddConfigPath("$HOME/.vchain")
	v.AddConfigPath("/etc/vchain")
	v.AddConfigPath(configPath)
	v.SetConfigType(strings.TrimPrefix(ext, "."))
	v.SetConfigName(strings.TrimSuffix(filename, ext))
	if customFile != "" {
		v.SetConfigFile(customFile)
	}
	return v.ReadInConfig()
}

func parseConfigLoggerParams(v *viper.Viper) loggerParams {
	params := loggerParams{}
	params.level = v.GetString("logger.level")
	if params.level == "" {
		params.level = defaultLoggerLevel
	}
	return params
}

func setupDataDir(params *storageParams, datadir string) {
	if datadir != "" && params.dataDir != datadir {
		np := new(storageParams)
		np.dataDir = datadir
		*params = *np
	}
	if params.forkCacheDir == "" {
		params.forkCacheDir = filepath.Join(
			params.dataDir, defaultForkCacheDir)
	}
	if params.stateDir == "" {
		params.stateDir = params.dataDir
	}
}

func parseConfigStorageParams(v *viper.Viper) storageParams {
	params := storageParams{}
	params.dataDir = v.GetString("storage.datadir")
	params.forkCacheDir = v.GetString("storage.forkcachedir")
	params.stateDir = v.GetString("storage.statedir")
	if params.dataDir == "" {
		home := os.Getenv("HOME")
		params.dataDir = filepath.Join(
			home, defaultStorageDir)
	}
	setupDataDir(&params, params.dataDir)
	return params
}

func parseConfigChainParams(v *viper.Viper) chainParams {
	params := chainParams{}
	params.chainID = v.GetUint64("chain.chainid")
	params.gasLimit = v.GetUint64("chain.gaslimit")
	params.accounts = v.GetInt("chain.accounts")
	if params.chainID == 0 {
		params.chainID = vchain.DefaultChainID
	}
	if params.gasLimit == 0 {
		params.gasLimit = vchain.DefaultGasLimit
	}
	if params.accounts <= 0 {
		params.accounts = defaultAccounts
	}
	balanceStr := v.GetString("chain.balance")
	if balanceStr != "" {
		if wei, err := common.EtherToWei(balanceStr); err == nil {
			params.devBalance = wei
		}
	}
	if params.devBalance == nil {
		params.devBalance = new(big.Int).Set(vchain.DefaultDevBalance)
	}
	return params
}

func parseConfigForkParams(v *viper.Viper) forkParams {
	return forkParams{
		url:         v.GetString("fork.url"),
		blockNumber: v.GetUint64("fork.blocknumber"),
	}
}

func parseConfigNodeParams(v *viper.Viper) node.Config {
	config := node.Config{
		RPCConfig: new(vchain.RPCConfig),
	}
	config.RPCConfig.ListenAddr = v.GetString("rpcserver.listen")
	config.RPCConfig.CORSOrigins = v.GetStringSlice("rpcserver.cors")
	if config.RPCConfig.ListenAddr == "" {
		config.RPCConfig.ListenAddr = defaultNodeRPCListenAddr
	}
	return config
}

func parseDaemonConfig(configFilePath string) (daemonConfig, error) {
	config := viper.New()
	// a missing config file falls back to defaults
	_ = readFromConfigPath(config, configFilePath)
	return daemonConfig{
		loggerParams:  parseConfigLoggerParams(config),
		storageParams: parseConfigStorageParams(config),
		chainParams:   parseConfigChainParams(config),
		forkParams:    parseConfigForkParams(config),
		nodeConfig:    parseConfigNodeParams(config),
	}, nil
}
