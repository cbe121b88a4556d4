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

import "sync"

// MemStorage is an IStorage backed by a map, used in tests and for
// ephemeral nodes that do not want an on-disk database.
type MemStorage struct {
	mu sync.RWMutex
	db map[string][]byte
}

func NewMemStorage() *MemStorage {
	return &MemStorage{
		db: make(map[string][]byte),
	}
}

func (st *MemStorage) GetData(key []byte) ([]byte, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	val, exists := st.db[string(key)]
	if !exists {
		return nil, ErrNotFound
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (st *MemStorage) SetData(key []byte, val []byte) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	cp := make([]byte, len(val))
	copy(cp, val)
	st.db[string(key)] = cp
	return nil
}

func (st *MemStorage) DelData(key []byte) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.db, string(key))
	return nil
}

func (st *MemStorage) ForeachData(fn func(k []byte, v []byte) error) error {
	st.mu.RLock()
	defer st.mu.RUnlock()
	for key, val := range st.db {
		if err := fn([]byte(key), val); err != nil {
			return err
		}
	}
	return nil
}

func (st *MemStorage) Close() error { return nil }
