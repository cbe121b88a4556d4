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

package vchain

import (
	"crypto/ecdsa"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
)

const (
	DefaultChainID     uint64 = 31337
	DefaultGasLimit    uint64 = 30_000_000
	DefaultBaseFee     uint64 = params.InitialBaseFee
	DefaultDevAccounts        = 10
)

// DefaultDevBalance is the genesis balance of each dev account: 10000 ether.
var DefaultDevBalance = new(big.Int).Mul(big.NewInt(10000), big.NewInt(params.Ether))

const devKeySeed = "vchain/dev-account/"

// DevAccount is a pre-funded account whose private key the node knows and
// signs with.
type DevAccount struct {
	Address common.Address
	Key     *ecdsa.PrivateKey
}

// DeriveDevAccounts derives n dev account keys from a fixed seed, so that
// every node instance starts with the same well-known accounts.
func DeriveDevAccounts(n int) []DevAccount {
	accounts := make([]DevAccount, 0, n)
	for i := 0; i < n; i++ {
		seed := crypto.Keccak256([]byte(devKeySeed + strconv.Itoa(i)))
		key, err := crypto.ToECDSA(seed)
		for err != nil {
			// out of curve order, roll the hash forward
			seed = crypto.Keccak256(seed)
			key, err = crypto.ToECDSA(seed)
		}
		accounts = append(accounts, DevAccount{
			Address: crypto.PubkeyToAddress(key.PublicKey),
			Key:     key,
		})
	}
	return accounts
}

// Genesis describes the initial chain state of a fresh node.
type Genesis struct {
	ChainID    uint64
	GasLimit   uint64
	BaseFee    *big.Int
	Timestamp  uint64
	DevBalance *big.Int
	Accounts   []DevAccount
	// Alloc holds extra genesis accounts beyond the dev set.
	Alloc map[common.Address]*Account
}

func DefaultGenesis() *Genesis {
	return &Genesis{
		ChainID:    DefaultChainID,
		GasLimit:   DefaultGasLimit,
		BaseFee:    new(big.Int).SetUint64(DefaultBaseFee),
		DevBalance: new(big.Int).Set(DefaultDevBalance),
		Accounts:   DeriveDevAccounts(DefaultDevAccounts),
	}
}

// WriteState funds the genesis accounts into state.
func (g *Genesis) WriteState(state *WorldState) {
	for _, dev := range g.Accounts {
		state.SetBalance(dev.Address, g.DevBalance)
	}
	for addr, acct := range g.Alloc {
		state.SetAccount(addr, acct)
	}
}
