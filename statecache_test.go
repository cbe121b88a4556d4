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
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() *StateSnapshot {
	ws := NewWorldState(nil)
	ws.SetBalance(common.HexToAddress("0x01"), big.NewInt(42))
	return CaptureStateSnapshot(ws, 1, common.HexToHash("0xb10c"), 1700000000)
}

func TestDiskCacheWriteThenRead(t *testing.T) {
	cache := NewDiskStateCache(t.TempDir(), nil)
	hash := common.HexToHash("0x01")
	cache.Write(hash, testSnapshot())

	// writes are fire-and-forget, poll until the background write lands
	require.Eventually(t, func() bool {
		return cache.Read(hash) != nil
	}, 2*time.Second, 10*time.Millisecond)

	snap := cache.Read(hash)
	require.NotNil(t, snap)
	assert.Equal(t, common.HexToHash("0xb10c"), snap.BlockHash)
	acct, ok := snap.Accounts[common.HexToAddress("0x01")]
	require.True(t, ok)
	assert.Equal(t, big.NewInt(42), (*big.Int)(acct.Balance))
}

func TestDiskCacheMissIsNil(t *testing.T) {
	cache := NewDiskStateCache(t.TempDir(), nil)
	assert.Nil(t, cache.Read(common.HexToHash("0x02")))
}

func TestDiskCacheLazyDirectory(t *testing.T) {
	parent := t.TempDir()
	cache := NewDiskStateCache(parent, nil)

	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	assert.Empty(t, entries, "directory must not exist before the first write")

	cache.Write(common.HexToHash("0x03"), testSnapshot())
	entries, err = os.ReadDir(parent)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "anvil-state-"))
}

func TestDiskCacheRemoveIdempotent(t *testing.T) {
	cache := NewDiskStateCache(t.TempDir(), nil)
	hash := common.HexToHash("0x04")

	// removing before any write is a no-op
	cache.Remove(hash)

	cache.Write(hash, testSnapshot())
	require.Eventually(t, func() bool {
		return cache.Read(hash) != nil
	}, 2*time.Second, 10*time.Millisecond)

	cache.Remove(hash)
	assert.Nil(t, cache.Read(hash))
	cache.Remove(hash)
}

func TestDiskCacheBrokenParentDegradesToNoop(t *testing.T) {
	parent := t.TempDir()
	blocked := filepath.Join(parent, "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("not a dir"), 0o644))

	cache := NewDiskStateCache(filepath.Join(blocked, "nested"), nil)
	hash := common.HexToHash("0x05")
	cache.Write(hash, testSnapshot())
	assert.Nil(t, cache.Read(hash))

	// still a no-op afterwards, never an error
	cache.Write(hash, testSnapshot())
	cache.Remove(hash)
	assert.Nil(t, cache.Read(hash))
}
