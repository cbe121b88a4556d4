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
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// SnapshotAccount is the serialized form of one account inside a
// StateSnapshot.
type SnapshotAccount struct {
	Nonce   hexutil.Uint64              `json:"nonce"`
	Balance *hexutil.Big                `json:"balance"`
	Code    hexutil.Bytes               `json:"code,omitempty"`
	Storage map[common.Hash]common.Hash `json:"storage,omitempty"`
}

// StateSnapshot is an immutable capture of the full account set plus the
// block metadata it belongs to. It is written once and read many times,
// both by the disk cache and by anvil_dumpState/anvil_loadState.
type StateSnapshot struct {
	BlockNumber hexutil.Uint64                     `json:"blockNumber"`
	BlockHash   common.Hash                        `json:"blockHash"`
	StateRoot   common.Hash                        `json:"stateRoot"`
	Timestamp   hexutil.Uint64                     `json:"timestamp"`
	Accounts    map[common.Address]SnapshotAccount `json:"accounts"`
}

// CaptureStateSnapshot freezes the given state. The snapshot owns deep
// copies, later mutation of ws does not leak into it.
func CaptureStateSnapshot(ws *WorldState, blockNumber uint64, blockHash common.Hash, timestamp uint64) *StateSnapshot {
	snap := &StateSnapshot{
		BlockNumber: hexutil.Uint64(blockNumber),
		BlockHash:   blockHash,
		StateRoot:   ws.StateRoot(),
		Timestamp:   hexutil.Uint64(timestamp),
		Accounts:    make(map[common.Address]SnapshotAccount, len(ws.Accounts())),
	}
	for addr, acct := range ws.Accounts() {
		sa := SnapshotAccount{
			Nonce:   hexutil.Uint64(acct.Nonce),
			Balance: (*hexutil.Big)(new(big.Int).Set(acct.Balance)),
		}
		if len(acct.Code) > 0 {
			sa.Code = make(hexutil.Bytes, len(acct.Code))
			copy(sa.Code, acct.Code)
		}
		if len(acct.Storage) > 0 {
			sa.Storage = make(map[common.Hash]common.Hash, len(acct.Storage))
			for k, v := range acct.Storage {
				sa.Storage[k] = v
			}
		}
		snap.Accounts[addr] = sa
	}
	return snap
}

// RestoreInto loads the snapshot's accounts into a fresh world state.
func (s *StateSnapshot) RestoreInto(ws *WorldState) {
	for addr, sa := range s.Accounts {
		acct := NewAccount()
		acct.Nonce = uint64(sa.Nonce)
		if sa.Balance != nil {
			acct.Balance = new(big.Int).Set((*big.Int)(sa.Balance))
		}
		if len(sa.Code) > 0 {
			code := make([]byte, len(sa.Code))
			copy(code, sa.Code)
			ws.SetAccount(addr, acct)
			ws.SetCode(addr, code)
			acct = nil
		} else {
			ws.SetAccount(addr, acct)
		}
		for k, v := range sa.Storage {
			ws.SetStorage(addr, k, v)
		}
	}
}

// MergeInto overlays the snapshot's accounts onto an existing state.
// Accounts absent from the snapshot are left untouched.
func (s *StateSnapshot) MergeInto(ws *WorldState) {
	s.RestoreInto(ws)
}

func (s *StateSnapshot) Encode() ([]byte, error) {
	return json.Marshal(s)
}

func DecodeStateSnapshot(data []byte) (*StateSnapshot, error) {
	snap := new(StateSnapshot)
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, err
	}
	return snap, nil
}
