// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pipeline runs a renderer build from discovery to emission.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/cleveryg/lens/internal/buildenv"
	"github.com/cleveryg/lens/internal/bundle"
	"github.com/cleveryg/lens/internal/cache"
	"github.com/cleveryg/lens/internal/chunk"
	"github.com/cleveryg/lens/internal/derrors"
	"github.com/cleveryg/lens/internal/dll"
	"github.com/cleveryg/lens/internal/emit"
	"github.com/cleveryg/lens/internal/graph"
	"github.com/cleveryg/lens/internal/log"
	"github.com/cleveryg/lens/internal/optimize"
	"github.com/cleveryg/lens/internal/rules"
	"github.com/go-redis/redis/v8"
)

// A Pipeline builds the renderer described by an environment. The
// transform cache it opens is kept across calls to Build.
type Pipeline struct {
	env   buildenv.Env
	rules *rules.Matcher
	cache cache.Cache
	redis *redis.Client
}

// An Option configures a Pipeline.
type Option func(*Pipeline)

// WithRules selects transform chains with m instead of the default rule
// set for the environment.
func WithRules(m *rules.Matcher) Option {
	return func(p *Pipeline) { p.rules = m }
}

// memoryCacheBytes bounds the in-process development cache.
const memoryCacheBytes = 256 << 20

// New returns a Pipeline for env. If env names a cache server, New checks
// that it is reachable.
func New(ctx context.Context, env buildenv.Env, opts ...Option) (_ *Pipeline, err error) {
	defer derrors.Wrap(&err, "pipeline.New")

	p := &Pipeline{env: env}
	for _, o := range opts {
		o(p)
	}
	if p.rules == nil {
		p.rules = rules.Default(env)
	}
	switch {
	case env.CacheAddr != "":
		p.redis = redis.NewClient(&redis.Options{Addr: env.CacheAddr})
		if err := p.redis.Ping(ctx).Err(); err != nil {
			p.redis.Close()
			return nil, fmt.Errorf("connecting to cache at %s: %v", env.CacheAddr, err)
		}
		p.cache = cache.NewRedis(p.redis, "lens:", 7*24*time.Hour)
		log.Infof(ctx, "caching transforms in redis at %s", env.CacheAddr)
	case env.Mode == buildenv.Development:
		p.cache = cache.NewMemory(memoryCacheBytes)
	}
	return p, nil
}

// Close releases the cache connection, if any.
func (p *Pipeline) Close() error {
	if p.redis != nil {
		return p.redis.Close()
	}
	return nil
}

// ClearCache removes every transform result from a shared cache. The
// in-process cache starts empty and needs no clearing.
func (p *Pipeline) ClearCache(ctx context.Context) error {
	if c, ok := p.cache.(*cache.Redis); ok {
		return c.Clear(ctx)
	}
	return nil
}

// Result describes a build.
type Result struct {
	// Graph holds the modules that were transformed successfully. It is set
	// even when some modules failed.
	Graph     *graph.Graph
	Chunks    []*chunk.Chunk
	Artifacts []emit.Artifact
}

// Build runs one build. If any module fails to transform or link, Build
// stops before planning and returns the partial result together with a
// derrors.List of the failures; nothing is written. Any other error
// aborts the build.
func (p *Pipeline) Build(ctx context.Context) (_ *Result, err error) {
	start := time.Now()
	env := p.env
	var m *dll.Manifest
	if env.ManifestPath != "" {
		m, err = dll.Load(ctx, env.ManifestPath)
		if err != nil {
			return nil, err
		}
	}
	linker := dll.NewLinker(m)

	salt, err := p.salt()
	if err != nil {
		return nil, err
	}
	d := graph.NewDiscoverer(env, p.rules, p.cache, salt)
	g, err := d.Discover(ctx)
	res := &Result{Graph: g}
	if err != nil {
		if g == nil {
			return nil, err
		}
		return res, err
	}
	vendor, err := linker.Link(g)
	if err != nil {
		return res, err
	}

	res.Chunks, err = chunk.Plan(g.Entries, g)
	if err != nil {
		return res, err
	}
	scripts, err := p.assemble(ctx, res.Chunks, vendor, linker.Library())
	if err != nil {
		return res, err
	}
	prelude, err := vendorScript(ctx, env.ManifestPath, m)
	if err != nil {
		return res, err
	}
	res.Artifacts, err = emit.New(env).Emit(ctx, scripts, prelude)
	if err != nil {
		return res, err
	}
	log.Infof(ctx, "%s build: %d modules in %d chunks, %d files (%s)",
		env.Mode, len(g.Modules), len(res.Chunks), len(res.Artifacts), time.Since(start).Round(time.Millisecond))
	return res, nil
}

// assemble produces the final script of every chunk, in chunk order.
// Non-entry chunks are finished first so that entry chunks can record
// their file names.
func (p *Pipeline) assemble(ctx context.Context, chunks []*chunk.Chunk, vendor map[string]dll.VendorHandle, lib *dll.Library) ([]*bundle.Script, error) {
	opt := optimize.New(p.env)
	em := emit.New(p.env)
	opts := bundle.Options{
		Vendor:     vendor,
		Library:    lib,
		Owners:     chunk.Owners(chunks),
		Chunks:     map[string]bundle.Files{},
		Requires:   map[string][]string{},
		SourceMaps: p.env.SourceMaps,
	}
	scripts := make([]*bundle.Script, len(chunks))
	build := func(i int) error {
		s, err := bundle.Assemble(chunks[i], opts)
		if err != nil {
			return err
		}
		s, err = opt.Apply(ctx, s)
		if err != nil {
			return err
		}
		scripts[i] = s
		return nil
	}
	for i, c := range chunks {
		if c.Entry {
			continue
		}
		if err := build(i); err != nil {
			return nil, err
		}
		opts.Chunks[c.Name] = em.Files(scripts[i])
		if len(c.Requires) > 0 {
			opts.Requires[c.Name] = c.Requires
		}
	}
	for i, c := range chunks {
		if !c.Entry {
			continue
		}
		if err := build(i); err != nil {
			return nil, err
		}
	}
	return scripts, nil
}

// salt distinguishes cache entries built against different shared
// stylesheets.
func (p *Pipeline) salt() (string, error) {
	if p.env.SharedStylePath == "" {
		return "", nil
	}
	data, err := os.ReadFile(p.env.SharedStylePath)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// vendorScript returns the vendor library script stored next to the
// manifest at location as <name>.js, if there is one.
func vendorScript(ctx context.Context, location string, m *dll.Manifest) ([]emit.Artifact, error) {
	if m == nil {
		return nil, nil
	}
	name := m.Name + ".js"
	loc := name
	if i := strings.LastIndexAny(location, `/\`); i >= 0 {
		loc = location[:i+1] + name
	}
	data, err := buildenv.ReadLocation(ctx, loc)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, storage.ErrObjectNotExist) {
		log.Debugf(ctx, "no vendor script at %s", loc)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []emit.Artifact{{Kind: emit.Script, Path: name, Content: data}}, nil
}
