// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package transform runs the ordered content-rewriting stages that turn one
// source file into module content.
//
// A Spec names a stage and its options. New turns a Spec into a Transform
// for a given build environment, and a Chain runs a list of Transforms in
// order, feeding each the content and source map produced by the previous
// one.
package transform

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cleveryg/lens/internal/buildenv"
	"github.com/cleveryg/lens/internal/derrors"
)

// Kind is the family a stage belongs to.
type Kind int

const (
	Script Kind = iota
	Template
	Style
	Binary
)

func (k Kind) String() string {
	switch k {
	case Script:
		return "script"
	case Template:
		return "template"
	case Style:
		return "style"
	case Binary:
		return "binary"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// A Spec describes one stage of a chain. It is a plain value and can be
// shared between files and rules.
type Spec struct {
	Kind    Kind
	Name    string
	Options map[string]string
}

func (s Spec) String() string {
	keys := make([]string, 0, len(s.Options))
	for k := range s.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%s", s.Kind, s.Name)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, s.Options[k])
	}
	return b.String()
}

// An Asset is a file produced as a side effect of transforming a module,
// such as an image copied to the output directory.
type Asset struct {
	Name string // slash-separated, relative to the output directory
	Data []byte
}

// A Unit is the in-flight state of one module as it moves through a chain.
type Unit struct {
	ID      string // module ID, used as the source name in maps
	Path    string // absolute file path
	Content []byte
	Map     []byte // JSON source map of Content, nil when absent

	// Styles holds stylesheet text extracted from the module.
	Styles []byte
	Assets []Asset

	// Generated is set by stages whose output does not derive from the
	// text of their input, such as a stub exporting an asset URL. Such
	// output needs no source map.
	Generated bool
}

func (u *Unit) clone() *Unit {
	c := *u
	c.Styles = append([]byte(nil), u.Styles...)
	c.Assets = append([]Asset(nil), u.Assets...)
	return &c
}

// A Transform is one stage of a chain.
type Transform interface {
	Name() string
	// Apply returns the result of the stage. It must not modify in.
	Apply(ctx context.Context, in *Unit) (*Unit, error)
}

// New returns the Transform described by spec.
func New(spec Spec, env buildenv.Env) (_ Transform, err error) {
	defer derrors.Wrap(&err, "transform.New(%s)", spec)

	switch spec.Kind {
	case Script:
		return newScript(spec, env)
	case Template:
		return newTemplate(spec, env)
	case Style:
		if spec.Options["preprocessor"] == "sass" {
			return newSass(spec, env)
		}
		return newStyle(spec, env)
	case Binary:
		if spec.Options["native"] == "true" {
			return newNative(spec, env)
		}
		return newFile(spec, env)
	}
	return nil, fmt.Errorf("%w: unknown kind %v", derrors.InvalidArgument, spec.Kind)
}

// stageError carries the source line a stage failed at.
type stageError struct {
	line int
	msg  string
}

func (e *stageError) Error() string { return e.msg }

func ext(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

func name(spec Spec, dflt string) string {
	if spec.Name != "" {
		return spec.Name
	}
	return dflt
}
