// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cleveryg/lens/internal/buildenv"
	"github.com/cleveryg/lens/internal/derrors"
	"github.com/cleveryg/lens/internal/log"
	"github.com/evanw/esbuild/pkg/api"
)

// BuildOptions configure Build.
type BuildOptions struct {
	// Name is the library name the script assigns its lookup function to.
	Name string
	// Modules are the identifiers to include.
	Modules []string
	// ResolveDir is the directory identifiers are resolved from; it
	// usually holds node_modules.
	ResolveDir string
	Mode       buildenv.Mode
	// Externals are left to the renderer's native require.
	Externals []string
}

// A Library script and the manifest describing it.
type Output struct {
	Script   []byte
	Manifest *Manifest
}

// Build bundles the given vendor modules into a single script that
// assigns a lookup function to a global variable named opts.Name, and
// returns it together with its manifest.
func Build(ctx context.Context, opts BuildOptions) (_ *Output, err error) {
	defer derrors.Wrap(&err, "dll.Build(%q)", opts.Name)

	if opts.Name == "" || len(opts.Modules) == 0 {
		return nil, fmt.Errorf("%w: a library needs a name and modules", derrors.InvalidArgument)
	}
	mods := append([]string(nil), opts.Modules...)
	sort.Strings(mods)

	var b strings.Builder
	b.WriteString("var modules = {\n")
	for _, m := range mods {
		key, _ := json.Marshal(m)
		fmt.Fprintf(&b, "  %s: function () { return require(%s); },\n", key, key)
	}
	b.WriteString("};\n")
	b.WriteString(`module.exports = function (id) {
  var load = modules[id];
  if (!load) throw new Error("vendor module " + id + " is not in the library");
  return load();
};
`)

	options := api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   b.String(),
			ResolveDir: opts.ResolveDir,
			Sourcefile: opts.Name + ".entry.js",
			Loader:     api.LoaderJS,
		},
		Bundle:     true,
		Format:     api.FormatIIFE,
		GlobalName: opts.Name,
		Platform:   api.PlatformBrowser,
		External:   opts.Externals,
		Write:      false,
		LogLevel:   api.LogLevelSilent,
		Define:     map[string]string{"process.env.NODE_ENV": fmt.Sprintf("%q", nodeEnv(opts.Mode))},
	}
	if opts.Mode == buildenv.Production {
		options.MinifyIdentifiers = true
		options.MinifySyntax = true
		options.MinifyWhitespace = true
		options.LegalComments = api.LegalCommentsEndOfFile
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := api.Build(options)
	if len(result.Errors) > 0 {
		msgs := api.FormatMessages(result.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage})
		return nil, errors.New(strings.TrimSpace(strings.Join(msgs, "")))
	}
	for _, w := range result.Warnings {
		log.Warningf(ctx, "dll %s: %s", opts.Name, w.Text)
	}
	if len(result.OutputFiles) != 1 {
		return nil, fmt.Errorf("esbuild produced %d files, want 1", len(result.OutputFiles))
	}

	m := &Manifest{Name: opts.Name, Type: StrategyVar, Content: map[string]Entry{}}
	for _, id := range mods {
		m.Content[id] = Entry{ID: EntryID(id)}
	}
	return &Output{Script: result.OutputFiles[0].Contents, Manifest: m}, nil
}

func nodeEnv(mode buildenv.Mode) string {
	if mode == buildenv.Production {
		return "production"
	}
	return "development"
}
