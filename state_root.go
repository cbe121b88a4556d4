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
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

// The state commitment scheme is the canonical Ethereum one: a secure
// (key-hashed) Merkle-Patricia trie over the account set, with each account
// leaf committing to its own secure storage trie. Any divergence here breaks
// state-root compatibility with real Ethereum tooling, so everything below
// goes through the stock go-ethereum trie hasher.

type triePair struct {
	key   []byte
	value []byte
}

// trieRoot computes the root over pre-encoded (key, value) leaves. Keys are
// keccak-hashed before insertion, which also makes the result independent of
// the caller's iteration order.
func trieRoot(pairs []triePair) common.Hash {
	if len(pairs) == 0 {
		return types.EmptyRootHash
	}
	hashed := make([]triePair, len(pairs))
	keccak := sha3.NewLegacyKeccak256()
	for i, p := range pairs {
		keccak.Reset()
		keccak.Write(p.key)
		hashed[i] = triePair{key: keccak.Sum(nil), value: p.value}
	}
	// the stack trie requires ascending key order
	sort.Slice(hashed, func(i, j int) bool {
		return bytes.Compare(hashed[i].key, hashed[j].key) < 0
	})
	st := trie.NewStackTrie(nil)
	for _, p := range hashed {
		// keys are 32-byte keccak digests, Update cannot reject them
		_ = st.Update(p.key, p.value)
	}
	return st.Hash()
}

// StorageRoot computes the storage trie root of one account. Zero-valued
// slots are excluded up front, they are never inserted and pruned.
func StorageRoot(storage map[common.Hash]common.Hash) common.Hash {
	pairs := make([]triePair, 0, len(storage))
	for slot, value := range storage {
		if value == (common.Hash{}) {
			continue
		}
		// values are stored as RLP of the minimal big-endian integer
		enc, _ := rlp.EncodeToBytes(bytes.TrimLeft(value[:], "\x00"))
		slot := slot
		pairs = append(pairs, triePair{key: slot[:], value: enc})
	}
	return trieRoot(pairs)
}

// AccountRLP encodes the account leaf as the canonical 4-tuple
// (nonce, balance, storageRoot, codeHash).
func AccountRLP(acct *Account) ([]byte, error) {
	balance := new(uint256.Int)
	if acct.Balance != nil {
		balance = uint256.MustFromBig(acct.Balance)
	}
	codeHash := acct.CodeHash
	if codeHash == (common.Hash{}) {
		codeHash = types.EmptyCodeHash
	}
	return rlp.EncodeToBytes(&types.StateAccount{
		Nonce:    acct.Nonce,
		Balance:  balance,
		Root:     StorageRoot(acct.Storage),
		CodeHash: codeHash.Bytes(),
	})
}

// StateRoot computes the world-state root over the full account set. The
// result is a pure function of the (address, account) pairs; an empty set
// yields the canonical empty-trie root.
func StateRoot(accounts map[common.Address]*Account) common.Hash {
	pairs := make([]triePair, 0, len(accounts))
	for addr, acct := range accounts {
		enc, err := AccountRLP(acct)
		if err != nil {
			continue
		}
		addr := addr
		pairs = append(pairs, triePair{key: addr[:], value: enc})
	}
	return trieRoot(pairs)
}
