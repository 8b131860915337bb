// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transform

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cleveryg/lens/internal/buildenv"
	"github.com/cleveryg/lens/internal/cache"
	"github.com/cleveryg/lens/internal/dcensus"
	"github.com/cleveryg/lens/internal/derrors"
	"github.com/cleveryg/lens/internal/log"
)

// A Chain runs stages in declaration order.
type Chain struct {
	specs  []Spec
	stages []Transform
	env    buildenv.Env
	cache  cache.Cache
	salt   string
}

// A ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithCache stores chain results in c. Salt is mixed into every key; it
// should change whenever an input that is not part of the module (such as
// the shared stylesheet) changes.
func WithCache(c cache.Cache, salt string) ChainOption {
	return func(ch *Chain) {
		ch.cache = c
		ch.salt = salt
	}
}

// NewChain builds the stages described by specs.
func NewChain(specs []Spec, env buildenv.Env, opts ...ChainOption) (*Chain, error) {
	c := &Chain{specs: specs, env: env}
	for _, spec := range specs {
		t, err := New(spec, env)
		if err != nil {
			return nil, err
		}
		c.stages = append(c.stages, t)
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Stages returns the names of the chain's stages, in order.
func (c *Chain) Stages() []string {
	var names []string
	for _, s := range c.stages {
		names = append(names, s.Name())
	}
	return names
}

// Run applies every stage to u and returns the final unit. The first
// failing stage stops the chain; its error is a *derrors.ModuleError that
// wraps derrors.TransformFailed.
func (c *Chain) Run(ctx context.Context, u *Unit) (_ *Unit, err error) {
	var key string
	if c.cache != nil {
		key = c.key(u)
		if out := c.lookup(ctx, key); out != nil {
			return out, nil
		}
	}

	cur := u
	for _, stage := range c.stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		out, err := stage.Apply(ctx, cur)
		dcensus.RecordStage(ctx, stage.Name(), time.Since(start))
		if err != nil {
			return nil, stageFailure(u.ID, stage.Name(), err)
		}
		if !c.env.SourceMaps {
			out.Map = nil
		} else if out.Map == nil && !out.Generated && !bytes.Equal(out.Content, cur.Content) {
			return nil, stageFailure(u.ID, stage.Name(), errors.New("stage changed the content without producing a source map"))
		}
		cur = out
	}

	if c.cache != nil {
		c.store(ctx, key, cur)
	}
	return cur, nil
}

func stageFailure(id, stage string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	me := &derrors.ModuleError{Path: id, Stage: stage, Err: fmt.Errorf("%w: %v", derrors.TransformFailed, err)}
	var se *stageError
	if errors.As(err, &se) {
		me.Line = se.line
	}
	return me
}

func (c *Chain) key(u *Unit) string {
	h := sha256.New()
	fmt.Fprintf(h, "lens-chain-v1\x00%s\x00%t\x00%s\x00%s\x00", c.env.Mode, c.env.SourceMaps, c.salt, u.ID)
	for _, s := range c.specs {
		fmt.Fprintf(h, "%s\x00", s)
	}
	h.Write(u.Content)
	h.Write([]byte{0})
	h.Write(u.Map)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Chain) lookup(ctx context.Context, key string) *Unit {
	data, err := c.cache.Get(ctx, key)
	if err != nil {
		log.Warningf(ctx, "transform cache: %v", err)
		return nil
	}
	if data == nil {
		dcensus.RecordCacheLookup(ctx, false)
		return nil
	}
	var out Unit
	if err := json.Unmarshal(data, &out); err != nil {
		log.Warningf(ctx, "transform cache: corrupt entry %s: %v", key, err)
		return nil
	}
	dcensus.RecordCacheLookup(ctx, true)
	return &out
}

func (c *Chain) store(ctx context.Context, key string, u *Unit) {
	data, err := json.Marshal(u)
	if err != nil {
		log.Warningf(ctx, "transform cache: %v", err)
		return
	}
	if err := c.cache.Put(ctx, key, data); err != nil {
		log.Warningf(ctx, "transform cache: %v", err)
	}
}

// String describes the chain for logs.
func (c *Chain) String() string {
	return strings.Join(c.Stages(), " -> ")
}
