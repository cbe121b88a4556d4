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
	"errors"
	"fmt"
	"math/big"
	"time"

	"vchain/log"
	"vchain/storage/badger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ForkClient fetches account state from an upstream endpoint at a pinned
// block number and memoizes the answers in an IStorage so that repeated
// executions do not refetch. It implements RemoteSource.
type ForkClient struct {
	client   *Client
	blockTag string
	cache    badger.IStorage
	logger   log.Logger
}

// NewForkClient pins the fork at blockNumber on the endpoint behind url.
// The cache may be nil, in which case every lookup goes to the network.
func NewForkClient(url string, blockNumber uint64, cache badger.IStorage, logger log.Logger) *ForkClient {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &ForkClient{
		client:   NewClient(url, 30*time.Second),
		blockTag: hexutil.EncodeUint64(blockNumber),
		cache:    cache,
		logger:   logger,
	}
}

func (f *ForkClient) cacheGet(key string) ([]byte, bool) {
	if f.cache == nil {
		return nil, false
	}
	val, err := f.cache.GetData([]byte(key))
	if err != nil {
		if !errors.Is(err, badger.ErrNotFound) {
			f.logger.Debugf("fork cache read err: %s", err)
		}
		return nil, false
	}
	return val, true
}

func (f *ForkClient) cacheSet(key string, val []byte) {
	if f.cache == nil {
		return
	}
	if err := f.cache.SetData([]byte(key), val); err != nil {
		f.logger.Debugf("fork cache write err: %s", err)
	}
}

// Account fetches nonce, balance and code for addr at the pinned block.
// A missing account comes back as nil without error.
func (f *ForkClient) Account(addr common.Address) (*Account, error) {
	key := fmt.Sprintf("acct/%s/%s", f.blockTag, addr.Hex())
	if raw, ok := f.cacheGet(key); ok {
		return decodeRemoteAccount(raw)
	}
	var balance hexutil.Big
	if err := f.client.CallMethod("eth_getBalance", []interface{}{addr, f.blockTag}, &balance); err != nil {
		return nil, err
	}
	var nonce hexutil.Uint64
	if err := f.client.CallMethod("eth_getTransactionCount", []interface{}{addr, f.blockTag}, &nonce); err != nil {
		return nil, err
	}
	var code hexutil.Bytes
	if err := f.client.CallMethod("eth_getCode", []interface{}{addr, f.blockTag}, &code); err != nil {
		return nil, err
	}
	acct := newRemoteAccount(uint64(nonce), (*big.Int)(&balance), code)
	if acct.empty() {
		f.cacheSet(key, []byte{})
		return nil, nil
	}
	f.cacheSet(key, encodeRemoteAccount(acct))
	return acct, nil
}

// StorageAt fetches one storage slot for addr at the pinned block.
func (f *ForkClient) StorageAt(addr common.Address, slot common.Hash) (common.Hash, error) {
	key := fmt.Sprintf("slot/%s/%s/%s", f.blockTag, addr.Hex(), slot.Hex())
	if raw, ok := f.cacheGet(key); ok {
		return common.BytesToHash(raw), nil
	}
	var value common.Hash
	if err := f.client.CallMethod("eth_getStorageAt", []interface{}{addr, slot, f.blockTag}, &value); err != nil {
		return common.Hash{}, err
	}
	f.cacheSet(key, value.Bytes())
	return value, nil
}

func newRemoteAccount(nonce uint64, balance *big.Int, code []byte) *Account {
	acct := NewAccount()
	acct.Nonce = nonce
	acct.Balance = new(big.Int).Set(balance)
	if len(code) > 0 {
		acct.Code = append([]byte(nil), code...)
		acct.CodeHash = crypto.Keccak256Hash(code)
	}
	return acct
}

// remote account cache encoding: nonce(8) || balance-len(1) || balance || code
func encodeRemoteAccount(acct *Account) []byte {
	bal := acct.Balance.Bytes()
	out := make([]byte, 0, 9+len(bal)+len(acct.Code))
	var nonce [8]byte
	for i := 0; i < 8; i++ {
		nonce[i] = byte(acct.Nonce >> (8 * (7 - i)))
	}
	out = append(out, nonce[:]...)
	out = append(out, byte(len(bal)))
	out = append(out, bal...)
	out = append(out, acct.Code...)
	return out
}

func decodeRemoteAccount(raw []byte) (*Account, error) {
	if len(raw) == 0 {
		// memoized miss
		return nil, nil
	}
	if len(raw) < 9 {
		return nil, errors.New("corrupt fork cache entry")
	}
	var nonce uint64
	for i := 0; i < 8; i++ {
		nonce = nonce<<8 | uint64(raw[i])
	}
	balLen := int(raw[8])
	if len(raw) < 9+balLen {
		return nil, errors.New("corrupt fork cache entry")
	}
	return newRemoteAccount(nonce, new(big.Int).SetBytes(raw[9:9+balLen]), raw[9+balLen:]), nil
}
