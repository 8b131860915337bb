// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package buildenv describes the environment of a single renderer build:
// its mode, its filesystem locations and the few feature switches that the
// rest of the pipeline consults.
//
// An Env is created once per build and passed by value. Packages read
// Env.Mode at each decision point instead of carrying their own flags.
package buildenv

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/cleveryg/lens/internal/derrors"
)

// Mode selects between fast incremental output and reproducible,
// optimized output.
type Mode int

const (
	Development Mode = iota
	Production
)

func (m Mode) String() string {
	if m == Production {
		return "production"
	}
	return "development"
}

// ParseMode parses "development" or "production" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "development", "dev":
		return Development, nil
	case "production", "prod":
		return Production, nil
	}
	return Development, fmt.Errorf("%w: unknown mode %q", derrors.InvalidArgument, s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	mode, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// An Entry is a named entry point of the renderer.
type Entry struct {
	Name string
	Path string // absolute
}

// Env holds everything a build needs to know about its inputs and outputs.
type Env struct {
	Mode Mode

	// SourceRoot is the renderer source directory. Module IDs are paths
	// relative to it.
	SourceRoot string
	// OutputDir receives every artifact.
	OutputDir string
	// TemplatePath is the HTML document template.
	TemplatePath string
	// SharedStylePath is a stylesheet of shared variables that is imported
	// ahead of every preprocessed stylesheet. Optional.
	SharedStylePath string
	// ManifestPath locates the vendor manifest. It may be a file path or a
	// gs://bucket/object URL. Optional; without it every bare import must be
	// an external.
	ManifestPath string
	// SourceMaps enables source maps for every stage.
	SourceMaps bool

	// Entries are the entry points, in declaration order.
	Entries []Entry
	// Aliases maps an import prefix to a directory.
	Aliases map[string]string
	// Externals are identifiers provided by the renderer process itself.
	Externals []string
	// Concurrency bounds the number of modules transformed at once.
	Concurrency int
	// Banner is prepended to optimized scripts as a legal comment.
	Banner string
	// CacheAddr is the address of a redis server used to cache transform
	// results. Empty means an in-memory cache in development and no cache
	// in production.
	CacheAddr string
	// Title is made available to the document template.
	Title string
	// SassPath is the sass executable used for .scss files.
	SassPath string
}

// DefaultExternals are the modules an Electron renderer can require
// natively.
var DefaultExternals = []string{
	"electron", "fs", "path", "os", "child_process", "crypto", "events",
	"http", "https", "net", "stream", "url", "util", "zlib",
}

// IsExternal reports whether id is provided natively by the renderer.
func (e Env) IsExternal(id string) bool {
	for _, x := range e.Externals {
		if id == x || strings.HasPrefix(id, x+"/") {
			return true
		}
	}
	return false
}

// Rel returns the module ID of the file at path: its slash-separated path
// relative to the source root.
func (e Env) Rel(path string) string {
	rel, err := filepath.Rel(e.SourceRoot, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Validate checks that the required fields are set, and fills in defaults
// for the optional ones.
func (e Env) Validate() (_ Env, err error) {
	defer derrors.Wrap(&err, "buildenv.Validate")

	if e.SourceRoot == "" {
		return e, fmt.Errorf("%w: missing source root", derrors.InvalidArgument)
	}
	if e.OutputDir == "" {
		return e, fmt.Errorf("%w: missing output directory", derrors.InvalidArgument)
	}
	if e.TemplatePath == "" {
		return e, fmt.Errorf("%w: missing template path", derrors.InvalidArgument)
	}
	if len(e.Entries) == 0 {
		return e, fmt.Errorf("%w: no entry points", derrors.InvalidArgument)
	}
	seen := map[string]bool{}
	for _, en := range e.Entries {
		if en.Name == "" || en.Path == "" {
			return e, fmt.Errorf("%w: entry %+v needs a name and a path", derrors.InvalidArgument, en)
		}
		if seen[en.Name] {
			return e, fmt.Errorf("%w: duplicate entry %q", derrors.InvalidArgument, en.Name)
		}
		seen[en.Name] = true
	}
	if e.Concurrency <= 0 {
		e.Concurrency = runtime.GOMAXPROCS(0)
	}
	if e.Aliases == nil {
		e.Aliases = map[string]string{"@": e.SourceRoot}
	}
	if e.Externals == nil {
		e.Externals = DefaultExternals
	}
	if e.SassPath == "" {
		e.SassPath = "sass"
	}
	return e, nil
}
