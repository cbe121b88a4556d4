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

package badger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// both implementations must behave identically
func storageImpls(t *testing.T) map[string]IStorage {
	t.Helper()
	disk, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = disk.Close() })
	return map[string]IStorage{
		"disk":   disk,
		"memory": NewMemStorage(),
	}
}

func TestStorageSetGet(t *testing.T) {
	for name, st := range storageImpls(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.SetData([]byte("k1"), []byte("v1")))
			val, err := st.GetData([]byte("k1"))
			require.NoError(t, err)
			assert.Equal(t, []byte("v1"), val)

			// overwrite
			require.NoError(t, st.SetData([]byte("k1"), []byte("v2")))
			val, err = st.GetData([]byte("k1"))
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), val)
		})
	}
}

func TestStorageMissing(t *testing.T) {
	for name, st := range storageImpls(t) {
		t.Run(name, func(t *testing.T) {
			_, err := st.GetData([]byte("nope"))
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStorageEmptyValue(t *testing.T) {
	// an empty value is a present entry, not a miss
	for name, st := range storageImpls(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.SetData([]byte("empty"), []byte{}))
			val, err := st.GetData([]byte("empty"))
			require.NoError(t, err)
			assert.Empty(t, val)
		})
	}
}

func TestStorageDelete(t *testing.T) {
	for name, st := range storageImpls(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.SetData([]byte("k"), []byte("v")))
			require.NoError(t, st.DelData([]byte("k")))
			_, err := st.GetData([]byte("k"))
			assert.ErrorIs(t, err, ErrNotFound)

			// deleting a missing key is fine
			assert.NoError(t, st.DelData([]byte("k")))
		})
	}
}

func TestStorageForeach(t *testing.T) {
	for name, st := range storageImpls(t) {
		t.Run(name, func(t *testing.T) {
			want := map[string]string{"a": "1", "b": "2", "c": "3"}
			for k, v := range want {
				require.NoError(t, st.SetData([]byte(k), []byte(v)))
			}
			got := make(map[string]string)
			require.NoError(t, st.ForeachData(func(k, v []byte) error {
				got[string(k)] = string(v)
				return nil
			}))
			assert.Equal(t, want, got)
		})
	}
}
