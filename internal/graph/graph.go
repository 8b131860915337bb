// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package graph discovers the modules of a build and the references
// between them.
package graph

import (
	"fmt"
	"sort"

	"github.com/cleveryg/lens/internal/transform"
)

// RefKind says how a reference is satisfied at run time.
type RefKind int

const (
	// Local refers to a module built from the source tree.
	Local RefKind = iota
	// Vendor refers to a module provided by the precompiled vendor library.
	Vendor
	// External refers to a module the renderer provides natively, such as
	// electron or fs.
	External
)

func (k RefKind) String() string {
	switch k {
	case Local:
		return "local"
	case Vendor:
		return "vendor"
	case External:
		return "external"
	}
	return fmt.Sprintf("RefKind(%d)", int(k))
}

// A Ref is a resolved module reference. For local refs ID is a module ID;
// otherwise it is the identifier the module was required by.
type Ref struct {
	Kind RefKind
	ID   string
}

func LocalRef(id string) Ref    { return Ref{Kind: Local, ID: id} }
func VendorRef(id string) Ref   { return Ref{Kind: Vendor, ID: id} }
func ExternalRef(id string) Ref { return Ref{Kind: External, ID: id} }

func (r Ref) String() string { return r.Kind.String() + ":" + r.ID }

// A Dependency is one specifier that a module requires or imports.
type Dependency struct {
	Specifier string // as written in the module
	Ref       Ref
	Dynamic   bool // only referenced through import()
}

// A Module is one transformed source file.
type Module struct {
	ID   string // path relative to the source root, slash-separated
	Path string
	Rule string // name of the rule that selected the module's chain
	Raw  []byte

	Dependencies []Dependency

	// Content is the compiled module with import() calls rewritten to
	// __load(), the loader the module wrapper passes in.
	Content []byte
	Map     []byte
	Styles  []byte
	Assets  []transform.Asset
}

// Dependency returns the dependency for specifier, or nil.
func (m *Module) Dependency(specifier string) *Dependency {
	for i := range m.Dependencies {
		if m.Dependencies[i].Specifier == specifier {
			return &m.Dependencies[i]
		}
	}
	return nil
}

// An Entry is a named entry point of the graph.
type Entry struct {
	Name   string
	Module string // module ID
}

// A Graph is the set of modules reachable from the entries.
type Graph struct {
	Entries []Entry
	Modules map[string]*Module
}

// Module returns the module with the given ID, or nil.
func (g *Graph) Module(id string) *Module {
	return g.Modules[id]
}

// IDs returns the IDs of all modules in sorted order.
func (g *Graph) IDs() []string {
	ids := make([]string, 0, len(g.Modules))
	for id := range g.Modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
