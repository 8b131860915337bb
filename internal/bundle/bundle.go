// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bundle assembles the modules of a chunk into one script.
//
// Every module is wrapped in a function registered with a small loader
// that ships at the top of each chunk. The wrapper gives the module a
// table from the specifiers it uses to thunks producing their exports:
// modules of the same build, vendor library lookups, or the renderer's
// native require. The module's own text is copied unchanged, so its
// source map carries over line for line.
package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cleveryg/lens/internal/chunk"
	"github.com/cleveryg/lens/internal/derrors"
	"github.com/cleveryg/lens/internal/dll"
	"github.com/cleveryg/lens/internal/graph"
	"github.com/cleveryg/lens/internal/sourcemap"
	"github.com/cleveryg/lens/internal/transform"
)

// A Script is an assembled chunk.
type Script struct {
	Name  string
	Entry bool
	Code  []byte
	Map   *sourcemap.Map // nil when source maps are off
	// License holds legal comments moved out of Code by the optimizer.
	License []byte
	// Styles are the stylesheets extracted from the chunk's modules.
	Styles  []byte
	Assets  []transform.Asset
	Modules []string
}

// Files are the emitted file names of a chunk, relative to the output
// directory.
type Files struct {
	JS  string `json:"js"`
	CSS string `json:"css,omitempty"`
}

// Options configure Assemble.
type Options struct {
	// Vendor holds the handles of vendor identifiers, from dll.Linker.Link.
	Vendor map[string]dll.VendorHandle
	// Library is the vendor library handles are looked up in.
	Library *dll.Library
	// Owners maps module IDs to the chunk holding them.
	Owners map[string]string
	// Chunks are the files of the non-entry chunks. Entry chunks record
	// them so that import() can fetch them.
	Chunks map[string]Files
	// Requires lists, per non-entry chunk, the non-entry chunks holding
	// modules it requires statically. They are loaded first.
	Requires map[string][]string
	// SourceMaps enables map composition.
	SourceMaps bool
}

// A tableEntry describes a non-entry chunk to the loader.
type tableEntry struct {
	Files
	Requires []string `json:"requires,omitempty"`
}

// Assemble builds the script of c.
func Assemble(c *chunk.Chunk, opts Options) (_ *Script, err error) {
	defer derrors.Wrap(&err, "bundle.Assemble(%q)", c.Name)

	s := &Script{Name: c.Name, Entry: c.Entry}
	var code bytes.Buffer
	var b *sourcemap.Builder
	if opts.SourceMaps {
		b = sourcemap.NewBuilder()
	}
	emit := func(text string, m *sourcemap.Map) error {
		code.WriteString(text)
		if b == nil {
			return nil
		}
		return b.Append(m, strings.Count(text, "\n"))
	}

	if err := emit(runtime, nil); err != nil {
		return nil, err
	}
	if c.Entry && opts.Library != nil {
		strategy, _ := json.Marshal(opts.Library.Strategy)
		name, _ := json.Marshal(opts.Library.Name)
		emit(fmt.Sprintf("__lens.library(%s, %s);\n", strategy, name), nil)
	}
	if c.Entry && len(opts.Chunks) > 0 {
		t := map[string]tableEntry{}
		for name, f := range opts.Chunks {
			t[name] = tableEntry{Files: f, Requires: opts.Requires[name]}
		}
		table, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		emit(fmt.Sprintf("__lens.chunks(%s);\n", table), nil)
	}

	for _, m := range c.Modules {
		deps, err := depTable(m, opts)
		if err != nil {
			return nil, err
		}
		id, _ := json.Marshal(m.ID)
		emit(fmt.Sprintf("__lens.define(%s, %s, function (module, exports, require, __load) {\n", id, deps), nil)

		body := m.Content
		if len(body) > 0 && body[len(body)-1] != '\n' {
			body = append(body[:len(body):len(body)], '\n')
		}
		var mm *sourcemap.Map
		if b != nil && m.Map != nil {
			if mm, err = sourcemap.Parse(m.Map); err != nil {
				return nil, fmt.Errorf("%w: map of %s: %v", derrors.InternalConsistency, m.ID, err)
			}
		}
		if err := emit(string(body), mm); err != nil {
			return nil, fmt.Errorf("%w: map of %s: %v", derrors.InternalConsistency, m.ID, err)
		}
		emit("});\n", nil)

		s.Modules = append(s.Modules, m.ID)
		if len(m.Styles) > 0 {
			s.Styles = append(s.Styles, m.Styles...)
			if s.Styles[len(s.Styles)-1] != '\n' {
				s.Styles = append(s.Styles, '\n')
			}
		}
		s.Assets = append(s.Assets, m.Assets...)
	}
	if c.Entry {
		id, _ := json.Marshal(c.Root)
		emit(fmt.Sprintf("__lens.require(%s);\n", id), nil)
	}

	s.Code = code.Bytes()
	if b != nil {
		s.Map = b.Map("")
	}
	return s, nil
}

// depTable returns the script object literal mapping each specifier of m
// to a thunk.
func depTable(m *graph.Module, opts Options) (string, error) {
	if len(m.Dependencies) == 0 {
		return "{}", nil
	}
	deps := append([]graph.Dependency(nil), m.Dependencies...)
	sort.SliceStable(deps, func(i, j int) bool { return deps[i].Specifier < deps[j].Specifier })

	var parts []string
	for _, d := range deps {
		spec, _ := json.Marshal(d.Specifier)
		id, _ := json.Marshal(d.Ref.ID)
		var expr string
		switch d.Ref.Kind {
		case graph.Local:
			owner, ok := opts.Owners[d.Ref.ID]
			if !ok {
				return "", fmt.Errorf("%w: %s requires %s, which is in no chunk", derrors.InternalConsistency, m.ID, d.Ref.ID)
			}
			if d.Dynamic {
				name, _ := json.Marshal(owner)
				expr = fmt.Sprintf("__lens.load(%s, %s)", name, id)
			} else {
				expr = fmt.Sprintf("__lens.require(%s)", id)
			}
		case graph.Vendor:
			h, ok := opts.Vendor[d.Ref.ID]
			if !ok {
				return "", fmt.Errorf("%w: %s requires unlinked vendor module %s", derrors.InternalConsistency, m.ID, d.Ref.ID)
			}
			expr = h.Expr()
		case graph.External:
			expr = fmt.Sprintf("__lens.native(%s)", id)
		}
		parts = append(parts, fmt.Sprintf("%s: function () { return %s; }", spec, expr))
	}
	return "{" + strings.Join(parts, ", ") + "}", nil
}
