// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cache stores transform results keyed by a digest of their inputs,
// either in process memory or in a Redis server shared between builds.
package cache

import (
	"context"
	"time"

	"github.com/cleveryg/lens/internal/derrors"
	"github.com/go-redis/redis/v8"
)

// A Cache maps keys to byte slices. Get returns nil, nil for a missing key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}

// Redis is a Redis-based cache.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis creates a new Redis cache using the given client. Keys are
// stored under prefix and expire after ttl; a zero ttl never expires.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// Get returns the value for key, or nil if the key does not exist.
func (c *Redis) Get(ctx context.Context, key string) (value []byte, err error) {
	defer derrors.Wrap(&err, "Get(%q)", key)
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil { // not found
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Put inserts the key with the given data.
func (c *Redis) Put(ctx context.Context, key string, data []byte) (err error) {
	defer derrors.Wrap(&err, "Put(%q, data)", key)
	_, err = c.client.Set(ctx, c.prefix+key, data, c.ttl).Result()
	return err
}

// Clear deletes every entry stored under the cache's prefix.
func (c *Redis) Clear(ctx context.Context) (err error) {
	defer derrors.Wrap(&err, "Clear()")
	iter := c.client.Scan(ctx, 0, c.prefix+"*", int64(scanCount)).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) > scanCount {
			if err := c.client.Unlink(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if iter.Err() != nil {
		return iter.Err()
	}
	if len(keys) > 0 {
		return c.client.Unlink(ctx, keys...).Err()
	}
	return nil
}

// The "count" argument to the Redis SCAN command, which is a hint for how much
// work to perform.
// Also used as the batch size for Unlink calls in Clear.
// var for testing.
var scanCount = 100
