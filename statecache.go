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
	"os"
	"path/filepath"
	"sync"
	"time"

	"vchain/log"

	"github.com/ethereum/go-ethereum/common"
)

const diskCachePrefix = "anvil-state-"

// DiskStateCache persists state snapshots on disk, one file per state-root
// hash. The cache is strictly advisory: every failure mode degrades to a
// cache miss or a no-op, it can never take the node down.
//
// Writes run on detached goroutines with no completion signal and no
// backpressure; a shutdown racing an in-flight write may lose that snapshot.
// That is an accepted limitation, not a bug.
type DiskStateCache struct {
	mu     sync.Mutex
	parent string
	dir    string
	broken bool
	logger log.Logger
}

// NewDiskStateCache creates a cache rooted below parent, or below the
// platform temp directory when parent is empty. No directory is created
// until the first write.
func NewDiskStateCache(parent string, logger log.Logger) *DiskStateCache {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &DiskStateCache{
		parent: parent,
		logger: logger,
	}
}

// ensureDir lazily creates the cache directory. A creation failure is
// logged once and flips the cache into no-op mode.
func (c *DiskStateCache) ensureDir() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return ""
	}
	if c.dir != "" {
		return c.dir
	}
	parent := c.parent
	if parent == "" {
		parent = os.TempDir()
	}
	dir := filepath.Join(parent, diskCachePrefix+time.Now().Format("02-01-2006-15-04"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.logger.Warnf("failed to create state cache dir %s: %s, disk caching disabled", dir, err)
		c.broken = true
		return ""
	}
	c.logger.Debugf("created state cache dir %s", dir)
	c.dir = dir
	return dir
}

func (c *DiskStateCache) pathFor(dir string, hash common.Hash) string {
	return filepath.Join(dir, hash.Hex())
}

// Write persists the snapshot under its hash on a background task. The
// caller gets no success or failure signal.
func (c *DiskStateCache) Write(hash common.Hash, snapshot *StateSnapshot) {
	dir := c.ensureDir()
	if dir == "" {
		return
	}
	go func() {
		data, err := snapshot.Encode()
		if err != nil {
			c.logger.Warnf("failed to encode state snapshot %s: %s", hash, err)
			return
		}
		if err := os.WriteFile(c.pathFor(dir, hash), data, 0o644); err != nil {
			c.logger.Warnf("failed to write state snapshot %s: %s", hash, err)
			return
		}
		c.logger.Debugf("wrote state snapshot %s to disk", hash)
	}()
}

// Read returns the snapshot stored under hash, or nil. I/O and decoding
// errors are cache misses.
func (c *DiskStateCache) Read(hash common.Hash) *StateSnapshot {
	c.mu.Lock()
	dir := c.dir
	c.mu.Unlock()
	if dir == "" {
		return nil
	}
	data, err := os.ReadFile(c.pathFor(dir, hash))
	if err != nil {
		return nil
	}
	snap, err := DecodeStateSnapshot(data)
	if err != nil {
		c.logger.Debugf("corrupt state snapshot %s on disk: %s", hash, err)
		return nil
	}
	return snap
}

// Remove deletes the snapshot file for hash. Removing a hash that was
// never written is not an error.
func (c *DiskStateCache) Remove(hash common.Hash) {
	c.mu.Lock()
	dir := c.dir
	c.mu.Unlock()
	if dir == "" {
		return
	}
	if err := os.Remove(c.pathFor(dir, hash)); err != nil && !os.IsNotExist(err) {
		c.logger.Debugf("failed to remove state snapshot %s: %s", hash, err)
	}
}
