// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package graph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cleveryg/lens/internal/buildenv"
	"github.com/cleveryg/lens/internal/cache"
	"github.com/cleveryg/lens/internal/dcensus"
	"github.com/cleveryg/lens/internal/derrors"
	"github.com/cleveryg/lens/internal/log"
	"github.com/cleveryg/lens/internal/rules"
	"github.com/cleveryg/lens/internal/transform"
	"golang.org/x/sync/errgroup"
)

// A Discoverer builds the module graph of a source tree.
type Discoverer struct {
	env      buildenv.Env
	matcher  *rules.Matcher
	resolver *Resolver
	cache    cache.Cache
	salt     string

	mu     sync.Mutex
	chains map[*rules.Rule]*transform.Chain
}

// NewDiscoverer returns a Discoverer that selects chains with m. If c is
// non-nil, chain results are cached in it under keys mixed with salt.
func NewDiscoverer(env buildenv.Env, m *rules.Matcher, c cache.Cache, salt string) *Discoverer {
	return &Discoverer{
		env:      env,
		matcher:  m,
		resolver: NewResolver(env),
		cache:    c,
		salt:     salt,
		chains:   map[*rules.Rule]*transform.Chain{},
	}
}

// Discover transforms every module reachable from the environment's
// entries and returns the resulting graph.
//
// Modules are processed in waves: all modules of a wave are transformed
// concurrently, and the local dependencies they reveal that have not been
// seen form the next wave. A module that fails is left out of the graph
// and its dependencies are not followed; processing of other modules
// continues. If any module failed, Discover returns the graph of the
// modules that succeeded together with a derrors.List of the failures.
func (d *Discoverer) Discover(ctx context.Context) (*Graph, error) {
	g := &Graph{Modules: map[string]*Module{}}
	var errs derrors.List
	seen := map[string]bool{}
	var wave []string
	for _, e := range d.env.Entries {
		file, err := ResolveFile(e.Path)
		if err != nil {
			errs = append(errs, &derrors.ModuleError{Path: d.env.Rel(e.Path), Stage: "entry", Err: err})
			continue
		}
		id := d.env.Rel(file)
		g.Entries = append(g.Entries, Entry{Name: e.Name, Module: id})
		if !seen[id] {
			seen[id] = true
			wave = append(wave, file)
		}
	}

	for n := 1; len(wave) > 0; n++ {
		log.Debugf(ctx, "discovery wave %d: %d modules", n, len(wave))
		mods := make([]*Module, len(wave))
		modErrs := make([]error, len(wave))
		eg, ectx := errgroup.WithContext(ctx)
		eg.SetLimit(d.env.Concurrency)
		for i, path := range wave {
			eg.Go(func() error {
				m, err := d.load(ectx, path)
				var me *derrors.ModuleError
				if err != nil && !errors.As(err, &me) {
					return err
				}
				dcensus.RecordModule(ectx, err == nil)
				mods[i], modErrs[i] = m, err
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}

		var next []string
		for i, m := range mods {
			if modErrs[i] != nil {
				errs = append(errs, modErrs[i])
				continue
			}
			g.Modules[m.ID] = m
			for _, dep := range m.Dependencies {
				if dep.Ref.Kind != Local || seen[dep.Ref.ID] {
					continue
				}
				seen[dep.Ref.ID] = true
				next = append(next, filepath.Join(d.env.SourceRoot, filepath.FromSlash(dep.Ref.ID)))
			}
		}
		wave = next
	}
	log.Infof(ctx, "discovered %d modules, %d failed", len(g.Modules), len(errs))
	return g, errs.Err()
}

// load reads, transforms and scans the file at path. Errors confined to
// the module are returned as *derrors.ModuleError; any other error stops
// the build.
func (d *Discoverer) load(ctx context.Context, path string) (*Module, error) {
	id := d.env.Rel(path)
	rule := d.matcher.Rule(id)
	if rule == nil {
		_, err := d.matcher.Match(id)
		return nil, err
	}
	chain, err := d.chain(rule)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("%w: %v", derrors.NotFound, err)
		}
		return nil, &derrors.ModuleError{Path: id, Stage: "read", Err: err}
	}
	u, err := chain.Run(ctx, &transform.Unit{ID: id, Path: path, Content: raw})
	if err != nil {
		return nil, err
	}
	s, err := scan(u, d.env.SourceRoot)
	if err != nil {
		return nil, err
	}
	m := &Module{
		ID:      id,
		Path:    path,
		Rule:    rule.Name,
		Raw:     raw,
		Content: s.content,
		Map:     s.sourceMap,
		Styles:  u.Styles,
		Assets:  u.Assets,
	}
	for _, c := range s.calls {
		ref, err := d.resolver.Resolve(path, c.specifier)
		if err != nil {
			return nil, &derrors.ModuleError{Path: id, Stage: "resolve", Err: err}
		}
		m.Dependencies = append(m.Dependencies, Dependency{Specifier: c.specifier, Ref: ref, Dynamic: c.dynamic})
	}
	log.Debugf(ctx, "%s: %s, %d dependencies", id, chain, len(m.Dependencies))
	return m, nil
}

func (d *Discoverer) chain(r *rules.Rule) (*transform.Chain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.chains[r]; ok {
		return c, nil
	}
	var opts []transform.ChainOption
	if d.cache != nil {
		opts = append(opts, transform.WithCache(d.cache, d.salt))
	}
	c, err := transform.NewChain(r.Transforms, d.env, opts...)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.Name, err)
	}
	d.chains[r] = c
	return c, nil
}
