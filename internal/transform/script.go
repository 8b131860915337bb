// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transform

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cleveryg/lens/internal/buildenv"
	"github.com/cleveryg/lens/internal/derrors"
	"github.com/cleveryg/lens/internal/sourcemap"
	"github.com/evanw/esbuild/pkg/api"
)

var loaders = map[string]api.Loader{
	"js":   api.LoaderJS,
	"jsx":  api.LoaderJSX,
	"ts":   api.LoaderTS,
	"tsx":  api.LoaderTSX,
	"json": api.LoaderJSON,
	"css":  api.LoaderCSS,
}

var targets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

var formats = map[string]api.Format{
	"":    api.FormatDefault,
	"cjs": api.FormatCommonJS,
	"esm": api.FormatESModule,
}

// script compiles JavaScript, TypeScript, JSX and JSON with esbuild.
//
// Options:
//
//	loader    js, jsx, ts, tsx, json, or auto (by file extension; default)
//	jsx       transform (default) or preserve
//	target    es5 ... es2022, esnext (default)
//	format    cjs, esm, or empty to keep the input's module syntax
//	tsconfig  path of a tsconfig.json whose compilerOptions apply
type script struct {
	name    string
	loader  string
	options api.TransformOptions
	env     buildenv.Env
}

func newScript(spec Spec, env buildenv.Env) (*script, error) {
	s := &script{
		name:   name(spec, "esbuild-"+spec.Options["loader"]),
		loader: spec.Options["loader"],
		env:    env,
	}
	if s.loader == "" {
		s.loader = "auto"
		s.name = name(spec, "esbuild")
	}
	if _, ok := loaders[s.loader]; !ok && s.loader != "auto" {
		return nil, fmt.Errorf("%w: unknown loader %q", derrors.InvalidArgument, s.loader)
	}
	target, ok := targets[strings.ToLower(spec.Options["target"])]
	if !ok {
		if spec.Options["target"] != "" {
			return nil, fmt.Errorf("%w: unknown target %q", derrors.InvalidArgument, spec.Options["target"])
		}
		target = api.ESNext
	}
	format, ok := formats[spec.Options["format"]]
	if !ok {
		return nil, fmt.Errorf("%w: unknown format %q", derrors.InvalidArgument, spec.Options["format"])
	}
	s.options = api.TransformOptions{
		Target: target,
		Format: format,
		// import() becomes an on-demand chunk load after the graph scan, so it
		// must survive even when the target predates it.
		Supported: map[string]bool{"dynamic-import": true},
	}
	switch spec.Options["jsx"] {
	case "", "transform":
		s.options.JSX = api.JSXTransform
	case "preserve":
		s.options.JSX = api.JSXPreserve
	default:
		return nil, fmt.Errorf("%w: unknown jsx mode %q", derrors.InvalidArgument, spec.Options["jsx"])
	}
	if p := spec.Options["tsconfig"]; p != "" {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		s.options.TsconfigRaw = string(data)
	}
	return s, nil
}

func (s *script) Name() string { return s.name }

func (s *script) Apply(ctx context.Context, in *Unit) (*Unit, error) {
	opts := s.options
	loader := s.loader
	if loader == "auto" {
		loader = ext(in.Path)
		if _, ok := loaders[loader]; !ok || loader == "css" {
			loader = "js"
		}
	}
	opts.Loader = loaders[loader]
	code, m, err := esbuildTransform(in, opts, s.env)
	if err != nil {
		return nil, err
	}
	out := in.clone()
	out.Content = code
	out.Map = m
	out.Generated = false
	return out, nil
}

// esbuildTransform runs esbuild on the content of in. When source maps are
// enabled the map of in is passed along as an inline comment, which esbuild
// composes with the map of its own output.
func esbuildTransform(in *Unit, opts api.TransformOptions, env buildenv.Env) (code, m []byte, err error) {
	input := string(in.Content)
	opts.Sourcefile = in.ID
	opts.LogLevel = api.LogLevelSilent
	if env.SourceMaps {
		opts.Sourcemap = api.SourceMapExternal
		opts.SourcesContent = api.SourcesContentInclude
		if in.Map != nil {
			input = strings.TrimRight(input, "\n") + "\n" + sourcemap.InlineComment(in.Map, opts.Loader == api.LoaderCSS)
		}
	}
	res := api.Transform(input, opts)
	if len(res.Errors) > 0 {
		return nil, nil, messageError(res.Errors)
	}
	if !env.SourceMaps {
		return res.Code, nil, nil
	}
	return res.Code, res.Map, nil
}

// messageError converts esbuild diagnostics into an error that records the
// line of the first one.
func messageError(msgs []api.Message) error {
	e := &stageError{}
	var parts []string
	for _, m := range msgs {
		text := m.Text
		if m.Location != nil {
			if e.line == 0 {
				e.line = m.Location.Line
			}
			text = fmt.Sprintf("%d:%d: %s", m.Location.Line, m.Location.Column, m.Text)
		}
		parts = append(parts, text)
	}
	e.msg = strings.Join(parts, "; ")
	return e
}
