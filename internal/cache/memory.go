// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cache

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// Memory is an in-process LRU cache bounded by the total size of its
// values.
type Memory struct {
	mu       sync.Mutex
	maxBytes int
	bytes    int
	entries  map[string]*entry
	tick     uint // increases every time an entry is used
}

type entry struct {
	lastUsed uint // the tick of the last operation
	v        []byte
}

// NewMemory returns a new Memory cache holding at most maxBytes of values.
// maxBytes must be positive or it will panic.
func NewMemory(maxBytes int) *Memory {
	if maxBytes < 1 {
		panic(fmt.Errorf("cache.NewMemory called with non-positive size %v", maxBytes))
	}
	return &Memory{
		maxBytes: maxBytes,
		entries:  map[string]*entry{},
	}
}

// Get gets the entry for key.
func (c *Memory) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	c.tick++
	e.lastUsed = c.tick
	return e.v, nil
}

// Put puts in an entry for key, evicting least recently used entries until
// the values fit. A value larger than the whole cache is not stored.
func (c *Memory) Put(_ context.Context, key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(data) > c.maxBytes {
		return nil
	}
	if old, ok := c.entries[key]; ok {
		c.bytes -= len(old.v)
		delete(c.entries, key)
	}
	for c.bytes+len(data) > c.maxBytes {
		// evict least recently used element.
		var oldestTick uint = math.MaxUint
		var oldestKey string
		for k, e := range c.entries {
			if e.lastUsed <= oldestTick {
				oldestTick = e.lastUsed
				oldestKey = k
			}
		}
		c.bytes -= len(c.entries[oldestKey].v)
		delete(c.entries, oldestKey)
	}
	c.tick++
	c.entries[key] = &entry{lastUsed: c.tick, v: data}
	c.bytes += len(data)
	return nil
}

// Len returns the number of entries in the cache.
func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
