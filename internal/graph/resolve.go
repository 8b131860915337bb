// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cleveryg/lens/internal/buildenv"
	"github.com/cleveryg/lens/internal/derrors"
)

// Extensions are tried, in order, when a local specifier names no file.
var Extensions = []string{".js", ".jsx", ".json", ".ts", ".tsx", ".vue"}

// A Resolver maps the specifiers written in a module to references.
type Resolver struct {
	env     buildenv.Env
	aliases []string // longest first
}

// NewResolver returns a Resolver for env.
func NewResolver(env buildenv.Env) *Resolver {
	r := &Resolver{env: env}
	for a := range env.Aliases {
		r.aliases = append(r.aliases, a)
	}
	// Longest alias first so that "@lib" is preferred over "@".
	sort.Slice(r.aliases, func(i, j int) bool {
		if len(r.aliases[i]) != len(r.aliases[j]) {
			return len(r.aliases[i]) > len(r.aliases[j])
		}
		return r.aliases[i] < r.aliases[j]
	})
	return r
}

// Resolve resolves specifier as written in the file at from.
//
// Relative and absolute specifiers, and those starting with an alias,
// name local files. Other specifiers name an external module if the
// renderer provides it, and a vendor module otherwise.
func (r *Resolver) Resolve(from, specifier string) (_ Ref, err error) {
	defer derrors.Wrap(&err, "Resolve(%q)", specifier)

	if specifier == "" {
		return Ref{}, fmt.Errorf("%w: empty specifier", derrors.InvalidArgument)
	}
	var path string
	switch {
	case strings.HasPrefix(specifier, "./"), strings.HasPrefix(specifier, "../"), specifier == ".", specifier == "..":
		path = filepath.Join(filepath.Dir(from), filepath.FromSlash(specifier))
	case filepath.IsAbs(specifier):
		path = filepath.Clean(specifier)
	default:
		if dir, rest, ok := r.alias(specifier); ok {
			path = filepath.Join(dir, filepath.FromSlash(rest))
			break
		}
		if r.env.IsExternal(specifier) {
			return ExternalRef(specifier), nil
		}
		return VendorRef(specifier), nil
	}
	file, err := ResolveFile(path)
	if err != nil {
		return Ref{}, err
	}
	return LocalRef(r.env.Rel(file)), nil
}

func (r *Resolver) alias(specifier string) (dir, rest string, ok bool) {
	for _, a := range r.aliases {
		if specifier == a {
			return r.env.Aliases[a], "", true
		}
		if strings.HasPrefix(specifier, a+"/") {
			return r.env.Aliases[a], specifier[len(a)+1:], true
		}
	}
	return "", "", false
}

// ResolveFile returns the file that path refers to: path itself, path with
// one of Extensions added, or, for a directory, the file named by the
// "main" field of its package.json or its index file.
func ResolveFile(path string) (string, error) {
	if f, ok := regularFile(path); ok {
		return f, nil
	}
	for _, ext := range Extensions {
		if f, ok := regularFile(path + ext); ok {
			return f, nil
		}
	}
	fi, err := os.Stat(path)
	if err != nil || !fi.IsDir() {
		return "", fmt.Errorf("%w: cannot resolve %s", derrors.NotFound, path)
	}
	main, err := packageMain(path)
	if err != nil {
		return "", err
	}
	if main != "" {
		if f, err := ResolveFile(filepath.Join(path, filepath.FromSlash(main))); err == nil {
			return f, nil
		}
	}
	for _, ext := range Extensions {
		if f, ok := regularFile(filepath.Join(path, "index"+ext)); ok {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: directory %s has no index file", derrors.NotFound, path)
}

func regularFile(path string) (string, bool) {
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return "", false
	}
	return path, true
}

func packageMain(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var pkg struct {
		Main string `json:"main"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return "", fmt.Errorf("%s: %v", filepath.Join(dir, "package.json"), err)
	}
	return pkg.Main, nil
}
