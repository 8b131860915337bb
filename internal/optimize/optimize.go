// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package optimize minifies assembled chunks for production.
package optimize

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/cleveryg/lens/internal/buildenv"
	"github.com/cleveryg/lens/internal/bundle"
	"github.com/cleveryg/lens/internal/derrors"
	"github.com/cleveryg/lens/internal/log"
	"github.com/cleveryg/lens/internal/sourcemap"
	"github.com/evanw/esbuild/pkg/api"
)

// An Optimizer post-processes scripts according to the build mode.
type Optimizer struct {
	env buildenv.Env
}

// New returns an Optimizer for env.
func New(env buildenv.Env) *Optimizer {
	return &Optimizer{env: env}
}

// Apply returns the optimized form of s. In development it returns s
// itself. In production the code is minified, its source map is
// carried through, legal comments are moved to s.License, and a banner
// pointing at the license file is prepended.
//
// Apply fails with derrors.InternalConsistency if the code does not
// parse, since every module in it was produced by an earlier stage.
func (o *Optimizer) Apply(ctx context.Context, s *bundle.Script) (_ *bundle.Script, err error) {
	if o.env.Mode != buildenv.Production {
		return s, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	input := string(s.Code)
	opts := api.TransformOptions{
		Loader:            api.LoaderJS,
		Target:            api.ESNext,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		LegalComments:     api.LegalCommentsExternal,
		Sourcefile:        path.Base(s.Name) + ".js",
		LogLevel:          api.LogLevelSilent,
	}
	if s.Map != nil {
		data, err := s.Map.Marshal()
		if err != nil {
			return nil, err
		}
		input = strings.TrimRight(input, "\n") + "\n" + sourcemap.InlineComment(data, false)
		opts.Sourcemap = api.SourceMapExternal
		opts.SourcesContent = api.SourcesContentInclude
	}
	res := api.Transform(input, opts)
	if len(res.Errors) > 0 {
		msgs := api.FormatMessages(res.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage})
		return nil, fmt.Errorf("%w: chunk %q does not parse: %s", derrors.InternalConsistency, s.Name, strings.TrimSpace(strings.Join(msgs, "")))
	}

	out := *s
	out.License = nil
	var banner bytes.Buffer
	if b := strings.TrimSpace(o.env.Banner); b != "" {
		fmt.Fprintf(&banner, "/*! %s */\n", strings.ReplaceAll(b, "*/", "* /"))
	}
	if len(bytes.TrimSpace(res.LegalComments)) > 0 {
		out.License = licenseFile(res.LegalComments)
		fmt.Fprintf(&banner, "/*! For license information please see %s */\n", LicenseName(s.Name))
		log.Debugf(ctx, "chunk %s: licenses %s", s.Name, strings.Join(Classify(res.LegalComments), ", "))
	}
	out.Code = append(banner.Bytes(), res.Code...)
	out.Map = nil
	if s.Map != nil {
		m, err := sourcemap.Parse(res.Map)
		if err != nil {
			return nil, fmt.Errorf("%w: map of chunk %q: %v", derrors.InternalConsistency, s.Name, err)
		}
		// The banner lines carry no mappings.
		m.Mappings = strings.Repeat(";", bytes.Count(banner.Bytes(), []byte("\n"))) + m.Mappings
		out.Map = m
	}
	return &out, nil
}

// LicenseName returns the name of the license file of the chunk called
// name, relative to the chunk's script.
func LicenseName(name string) string {
	return path.Base(name) + ".LICENSE.txt"
}
