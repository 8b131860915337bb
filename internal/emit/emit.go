// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package emit renders and writes the output files of a build.
package emit

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/cleveryg/lens/internal/buildenv"
	"github.com/cleveryg/lens/internal/bundle"
	"github.com/cleveryg/lens/internal/derrors"
	"github.com/cleveryg/lens/internal/log"
	"github.com/cleveryg/lens/internal/optimize"
	"github.com/cleveryg/lens/internal/sourcemap"
)

// Kind is the kind of an artifact.
type Kind int

const (
	Script Kind = iota
	Stylesheet
	Document
	Asset
	SourceMap
	License
)

func (k Kind) String() string {
	switch k {
	case Script:
		return "script"
	case Stylesheet:
		return "stylesheet"
	case Document:
		return "document"
	case Asset:
		return "asset"
	case SourceMap:
		return "sourcemap"
	case License:
		return "license"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// An Artifact is one output file.
type Artifact struct {
	Kind    Kind
	Path    string // slash-separated, relative to the output directory
	Content []byte
}

// An Emitter renders artifacts for an environment and writes them to its
// output directory.
type Emitter struct {
	env buildenv.Env
}

// New returns an Emitter for env.
func New(env buildenv.Env) *Emitter {
	return &Emitter{env: env}
}

const hashLen = 8

// Files returns the names s is emitted under. In production the names
// carry a hash of the content.
func (e *Emitter) Files(s *bundle.Script) bundle.Files {
	f := bundle.Files{JS: e.name(s.Name, ".js", s.Code)}
	if e.env.Mode == buildenv.Production && len(bytes.TrimSpace(s.Styles)) > 0 {
		f.CSS = e.name(s.Name, ".css", s.Styles)
	}
	return f
}

func (e *Emitter) name(base, ext string, content []byte) string {
	if e.env.Mode != buildenv.Production {
		return base + ext
	}
	sum := sha256.Sum256(content)
	return base + "." + hex.EncodeToString(sum[:])[:hashLen] + ext
}

// Render returns every artifact of a build without writing anything.
// Scripts are in chunk order; only entry chunks are referenced from the
// document, after the scripts in prelude (such as the vendor library).
// Prelude artifacts are emitted as they are.
func (e *Emitter) Render(ctx context.Context, scripts []*bundle.Script, prelude []Artifact) (_ []Artifact, err error) {
	defer derrors.Wrap(&err, "emit.Render")

	tmpl, err := loadTemplate(e.env.TemplatePath)
	if err != nil {
		return nil, err
	}

	var arts []Artifact
	var doc document
	for _, a := range prelude {
		arts = append(arts, a)
		switch a.Kind {
		case Script:
			doc.scripts = append(doc.scripts, a.Path)
		case Stylesheet:
			doc.styles = append(doc.styles, a.Path)
		}
	}

	assets := map[string][]byte{}
	for _, s := range scripts {
		files := e.Files(s)
		code := s.Code
		if s.Map != nil {
			m := *s.Map
			m.File = path.Base(files.JS)
			data, err := m.Marshal()
			if err != nil {
				return nil, err
			}
			code = append(append([]byte(nil), bytes.TrimRight(code, "\n")...), '\n')
			if e.env.Mode == buildenv.Production {
				arts = append(arts, Artifact{Kind: SourceMap, Path: files.JS + ".map", Content: data})
				code = append(code, sourcemap.URLComment(path.Base(files.JS)+".map", false)...)
			} else {
				code = append(code, sourcemap.InlineComment(data, false)...)
			}
		}
		arts = append(arts, Artifact{Kind: Script, Path: files.JS, Content: code})
		if files.CSS != "" {
			arts = append(arts, Artifact{Kind: Stylesheet, Path: files.CSS, Content: s.Styles})
		}
		if len(s.License) > 0 {
			arts = append(arts, Artifact{Kind: License, Path: path.Join(path.Dir(s.Name), optimize.LicenseName(s.Name)), Content: s.License})
		}
		for _, a := range s.Assets {
			if prev, ok := assets[a.Name]; ok {
				if !bytes.Equal(prev, a.Data) {
					return nil, fmt.Errorf("%w: two different assets named %s", derrors.InternalConsistency, a.Name)
				}
				continue
			}
			assets[a.Name] = a.Data
			arts = append(arts, Artifact{Kind: Asset, Path: a.Name, Content: a.Data})
		}
		if s.Entry {
			if files.CSS != "" {
				doc.styles = append(doc.styles, files.CSS)
			}
			doc.scripts = append(doc.scripts, files.JS)
		}
	}

	html, err := doc.render(tmpl, DocumentData{Title: e.env.Title, Development: e.env.Mode == buildenv.Development})
	if err != nil {
		return nil, err
	}
	arts = append(arts, Artifact{Kind: Document, Path: documentName(e.env.TemplatePath), Content: html})

	seen := map[string]bool{}
	for _, a := range arts {
		if seen[a.Path] {
			return nil, fmt.Errorf("%w: two artifacts named %s", derrors.InternalConsistency, a.Path)
		}
		seen[a.Path] = true
	}
	log.Debugf(ctx, "rendered %d artifacts", len(arts))
	return arts, nil
}

// Emit renders the artifacts of a build and writes them to the output
// directory. Nothing is written if rendering fails.
func (e *Emitter) Emit(ctx context.Context, scripts []*bundle.Script, prelude []Artifact) ([]Artifact, error) {
	arts, err := e.Render(ctx, scripts, prelude)
	if err != nil {
		return nil, err
	}
	if err := Write(ctx, e.env.OutputDir, arts); err != nil {
		return nil, err
	}
	return arts, nil
}

// documentName is the name of the generated document: the template's base
// name, with a trailing .tmpl removed and .html added if needed.
func documentName(templatePath string) string {
	name := strings.TrimSuffix(path.Base(strings.ReplaceAll(templatePath, "\\", "/")), ".tmpl")
	if path.Ext(name) != ".html" {
		name += ".html"
	}
	return name
}

// Paths returns the paths of arts, sorted.
func Paths(arts []Artifact) []string {
	var ps []string
	for _, a := range arts {
		ps = append(ps, a.Path)
	}
	sort.Strings(ps)
	return ps
}
