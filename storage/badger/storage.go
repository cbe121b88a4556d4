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
	"errors"

	badgerdb "github.com/dgraph-io/badger/v3"
)

// ErrNotFound is returned by GetData when the key does not exist.
var ErrNotFound = errors.New("key not found")

// IStorage is the flat key value store used by caches and persisted
// metadata. Implementations must be safe for concurrent use.
type IStorage interface {
	GetData(key []byte) ([]byte, error)
	SetData(key []byte, val []byte) error
	DelData(key []byte) error
	ForeachData(fn func(k []byte, v []byte) error) error
	Close() error
}

// Storage implements IStorage on top of a badger database directory.
type Storage struct {
	db     *badgerdb.DB
	dbPath string
}

func New(pathname string) (*Storage, error) {
	opts := badgerdb.DefaultOptions(pathname)
	opts.Logger = nil
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Storage{
		db:     db,
		dbPath: pathname,
	}, nil
}

func (s *Storage) GetDBPath() string {
	return s.dbPath
}

func (s *Storage) GetData(key []byte) ([]byte, error) {
	var val []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (s *Storage) SetData(key []byte, val []byte) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key, val)
	})
}

func (s *Storage) DelData(key []byte) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(key)
	})
}

func (s *Storage) ForeachData(fn func(k []byte, v []byte) error) error {
	return s.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err = fn(item.KeyCopy(nil), val); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Storage) Close() error {
	return s.db.Close()
}
