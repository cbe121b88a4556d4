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
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// AccountOverride describes caller-supplied modifications to one account for
// the duration of a simulated call. State and StateDiff are mutually
// exclusive: State replaces the storage wholesale, StateDiff merges the
// listed slots into the existing storage.
type AccountOverride struct {
	Nonce     *hexutil.Uint64             `json:"nonce,omitempty"`
	Code      *hexutil.Bytes              `json:"code,omitempty"`
	Balance   *hexutil.Big                `json:"balance,omitempty"`
	State     map[common.Hash]common.Hash `json:"state,omitempty"`
	StateDiff map[common.Hash]common.Hash `json:"stateDiff,omitempty"`
}

// StateOverride maps addresses to their overrides.
type StateOverride map[common.Address]AccountOverride

// StateOverrideError reports an invalid override for one account. It is a
// synchronous validation failure, never auto-resolved.
type StateOverrideError struct {
	Addr   common.Address
	Reason string
}

func (e *StateOverrideError) Error() string {
	return fmt.Sprintf("state override for %s: %s", e.Addr.Hex(), e.Reason)
}

func (o StateOverride) validate() error {
	for addr, diff := range o {
		if diff.State != nil && diff.StateDiff != nil {
			return &StateOverrideError{
				Addr:   addr,
				Reason: "both 'state' and 'stateDiff' set",
			}
		}
	}
	return nil
}

// ApplyStateOverride builds a copy-on-write view of base with the overrides
// applied. The base state is never mutated; validation runs before any
// account is touched, so a failed call leaves no partial effects.
func ApplyStateOverride(base *WorldState, overrides StateOverride) (*WorldState, error) {
	if err := overrides.validate(); err != nil {
		return nil, err
	}
	overlay := base.Copy()
	for addr, diff := range overrides {
		acct := overlay.getOrNewAccount(addr)
		if diff.Nonce != nil {
			acct.Nonce = uint64(*diff.Nonce)
		}
		if diff.Code != nil {
			acct.Code = *diff.Code
			acct.CodeHash = crypto.Keccak256Hash(*diff.Code)
			if len(*diff.Code) == 0 {
				acct.CodeHash = types.EmptyCodeHash
			}
		}
		if diff.Balance != nil {
			acct.Balance = new(big.Int).Set((*big.Int)(diff.Balance))
		}
		switch {
		case diff.State != nil:
			// wholesale replacement: the account behaves as freshly
			// created, untouched old slots become unreadable
			acct.Storage = make(map[common.Hash]common.Hash, len(diff.State))
			delete(overlay.remoteLoaded, addr)
			overlay.remoteNegative[addr] = struct{}{}
			for slot, value := range diff.State {
				if value != (common.Hash{}) {
					acct.Storage[slot] = value
				}
			}
		case diff.StateDiff != nil:
			for slot, value := range diff.StateDiff {
				if value == (common.Hash{}) {
					delete(acct.Storage, slot)
					continue
				}
				acct.Storage[slot] = value
			}
		}
	}
	return overlay, nil
}
