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

package node

import (
	"vchain"
	"vchain/api"
	"vchain/common"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// Node ties the backend and the RPC transport together.
type Node struct {
	config    *Config
	backend   *vchain.Backend
	rpcServer *vchain.RPCServer
}

type Config struct {
	RPCConfig *vchain.RPCConfig
}

// New creates a node serving the given config, ready for backend
// registration.
func New(config *Config) (*Node, error) {
	n := &Node{
		config:    config,
		rpcServer: vchain.NewRPCServer(config.RPCConfig),
	}
	return n, nil
}

// RegisterBackend installs the API handler answering for backend.
func (n *Node) RegisterBackend(backend *vchain.Backend) {
	n.backend = backend
	n.rpcServer.SetHandler(api.NewHandler(backend, n.config.RPCConfig.Logger))
}

// Start prints the account banner and starts RPC service in a goroutine.
// Node can only be started once.
func (n *Node) Start() error {
	n.printBanner()
	go func() {
		if err := n.rpcServer.Start(); err != nil {
			logrus.Errorln(err)
		}
	}()
	return nil
}

func (n *Node) Backend() *vchain.Backend {
	return n.backend
}

func (n *Node) printBanner() {
	if n.backend == nil {
		return
	}
	logrus.Infof("%s", vchain.VersionString())
	logrus.Infof("Chain ID: %d", n.backend.ChainID())
	logrus.Infof("Available Accounts")
	for i, dev := range n.backend.DevAccounts() {
		balance, err := n.backend.BalanceAt(dev.Address, n.backend.BlockNumber())
		if err != nil {
			continue
		}
		logrus.Infof("(%d) %s (%s ETH)", i, dev.Address.Hex(), common.WeiToEther(balance))
	}
	logrus.Infof("Private Keys")
	for i, dev := range n.backend.DevAccounts() {
		logrus.Infof("(%d) 0x%x", i, crypto.FromECDSA(dev.Key))
	}
}
