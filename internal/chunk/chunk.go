// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package chunk assigns modules to output chunks.
package chunk

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/cleveryg/lens/internal/derrors"
	"github.com/cleveryg/lens/internal/graph"
)

// A Chunk is a group of modules emitted as one script.
type Chunk struct {
	Name  string
	Entry bool
	// Root is the ID of the module that the chunk was started from: an
	// entry module, or the target of a dynamic import.
	Root string
	// Modules are ordered so that a module's static dependencies in the
	// same chunk come before it.
	Modules []*graph.Module
	// Requires names the non-entry chunks that own static dependencies of
	// the chunk's modules, in planning order. They must be loaded first.
	Requires []string
}

// Plan partitions the modules reachable from entries into chunks.
//
// Entries are walked in order, each following static dependencies; a
// module belongs to the first entry that reaches it. Modules reached only
// through dynamic imports are then walked the same way, each starting a
// chunk named after its path under "chunks/". Vendor and external
// references are never followed.
//
// A module shared by two dynamic chunks belongs to the one planned first;
// the other records it in Requires.
func Plan(entries []graph.Entry, g *graph.Graph) (_ []*Chunk, err error) {
	defer derrors.Wrap(&err, "chunk.Plan")

	p := &planner{g: g, owner: map[string]*Chunk{}, names: map[string]bool{}}
	var chunks []*Chunk
	for _, e := range entries {
		if p.names[e.Name] {
			return nil, fmt.Errorf("%w: duplicate entry name %q", derrors.InvalidArgument, e.Name)
		}
		p.names[e.Name] = true
		c := &Chunk{Name: e.Name, Entry: true, Root: e.Module}
		if err := p.walk(c, e.Module); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	for i := 0; i < len(p.dynamic); i++ {
		id := p.dynamic[i]
		if p.owner[id] != nil {
			continue
		}
		c := &Chunk{Name: p.dynamicName(id), Root: id}
		if err := p.walk(c, id); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	p.requires(chunks)
	return chunks, nil
}

// requires fills in Requires of the non-entry chunks.
func (p *planner) requires(chunks []*Chunk) {
	order := map[*Chunk]int{}
	for i, c := range chunks {
		order[c] = i
	}
	for _, c := range chunks {
		if c.Entry {
			continue
		}
		need := map[*Chunk]bool{}
		for _, m := range c.Modules {
			for _, dep := range m.Dependencies {
				if dep.Ref.Kind != graph.Local || dep.Dynamic {
					continue
				}
				if o := p.owner[dep.Ref.ID]; o != nil && o != c && !o.Entry {
					need[o] = true
				}
			}
		}
		var req []*Chunk
		for o := range need {
			req = append(req, o)
		}
		sort.Slice(req, func(i, j int) bool { return order[req[i]] < order[req[j]] })
		for _, o := range req {
			c.Requires = append(c.Requires, o.Name)
		}
	}
}

type planner struct {
	g       *graph.Graph
	owner   map[string]*Chunk
	names   map[string]bool
	dynamic []string // dynamic import targets in discovery order
}

// walk adds id and its unowned static dependencies to c in post-order.
func (p *planner) walk(c *Chunk, id string) error {
	if p.owner[id] != nil {
		return nil
	}
	m := p.g.Module(id)
	if m == nil {
		return fmt.Errorf("%w: module %q is referenced but was not transformed", derrors.InternalConsistency, id)
	}
	p.owner[id] = c
	for _, dep := range m.Dependencies {
		if dep.Ref.Kind != graph.Local {
			continue
		}
		if dep.Dynamic {
			p.dynamic = append(p.dynamic, dep.Ref.ID)
			continue
		}
		if err := p.walk(c, dep.Ref.ID); err != nil {
			return err
		}
	}
	c.Modules = append(c.Modules, m)
	return nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_\-/]+`)

// dynamicName derives a chunk name from a module ID, so that the same
// module always yields the same name.
func (p *planner) dynamicName(id string) string {
	id = strings.TrimLeft(path.Clean("/"+id), "/")
	base := strings.TrimSuffix(id, path.Ext(id))
	name := "chunks/" + unsafeChars.ReplaceAllString(base, "_")
	if p.names[name] {
		name = "chunks/" + unsafeChars.ReplaceAllString(id, "_")
	}
	for i := 2; p.names[name]; i++ {
		name = fmt.Sprintf("chunks/%s-%d", unsafeChars.ReplaceAllString(base, "_"), i)
	}
	p.names[name] = true
	return name
}

// Owners returns the name of the chunk each module belongs to.
func Owners(chunks []*Chunk) map[string]string {
	owners := map[string]string{}
	for _, c := range chunks {
		for _, m := range c.Modules {
			owners[m.ID] = c.Name
		}
	}
	return owners
}
