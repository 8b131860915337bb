// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package graph

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cleveryg/lens/internal/derrors"
	"github.com/cleveryg/lens/internal/sourcemap"
	"github.com/cleveryg/lens/internal/transform"
	"github.com/evanw/esbuild/pkg/api"
)

// A call is a require, import statement or import() of a module by a
// literal specifier.
type call struct {
	specifier string
	dynamic   bool
}

// scanned is the result of scanning one module.
type scanned struct {
	// content has every import() call replaced by a call to the module
	// wrapper's __load parameter.
	content   []byte
	sourceMap []byte
	calls     []call
}

// loadCall replaces "import(" in linked module content; it has the same
// length so columns in the source map stay put.
const loadCall = "__load("

// scan parses the compiled content of u and returns the modules it refers
// to, in order of first appearance. A specifier both required and imported
// counts as required. Calls inside strings, comments and regular
// expressions are not references.
//
// esbuild does the parsing: u is bundled with a plugin that records every
// resolution and leaves the target external. Dynamic imports are resolved
// to a path carrying a marker derived from the content, which locates them
// in the output for the rewrite to __load.
func scan(u *transform.Unit, root string) (*scanned, error) {
	if !bytes.Contains(u.Content, []byte("require")) && !bytes.Contains(u.Content, []byte("import")) {
		return &scanned{content: u.Content, sourceMap: u.Map}, nil
	}
	sum := sha256.Sum256(u.Content)
	marker := "lens-import-" + hex.EncodeToString(sum[:6]) + ":"

	var (
		mu         sync.Mutex
		calls      []call
		index      = map[string]int{}
		sawDynamic bool
	)
	record := func(spec string, dynamic bool) {
		mu.Lock()
		defer mu.Unlock()
		sawDynamic = sawDynamic || dynamic
		if i, ok := index[spec]; ok {
			if !dynamic {
				calls[i].dynamic = false
			}
			return
		}
		index[spec] = len(calls)
		calls = append(calls, call{specifier: spec, dynamic: dynamic})
	}
	plugin := api.Plugin{
		Name: "lens-scan",
		Setup: func(b api.PluginBuild) {
			b.OnResolve(api.OnResolveOptions{Filter: `.*`}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				switch args.Kind {
				case api.ResolveJSImportStatement, api.ResolveJSRequireCall:
					record(args.Path, false)
				case api.ResolveJSDynamicImport:
					record(args.Path, true)
					return api.OnResolveResult{Path: marker + args.Path, External: true}, nil
				}
				return api.OnResolveResult{Path: args.Path, External: true}, nil
			})
		},
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	input := string(u.Content)
	options := api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   input,
			Sourcefile: u.ID,
			ResolveDir: abs,
			Loader:     api.LoaderJS,
		},
		AbsWorkingDir: abs,
		Outfile:       filepath.Join(abs, "scan.js"),
		Bundle:        true,
		Write:         false,
		Format:        api.FormatCommonJS,
		Platform:      api.PlatformNeutral,
		Target:        api.ESNext,
		Supported:     map[string]bool{"dynamic-import": true},
		TreeShaking:   api.TreeShakingFalse,
		LegalComments: api.LegalCommentsInline,
		Charset:       api.CharsetUTF8,
		LogLevel:      api.LogLevelSilent,
		Plugins:       []api.Plugin{plugin},
	}
	if len(u.Map) > 0 {
		options.Stdin.Contents = strings.TrimRight(input, "\n") + "\n" + sourcemap.InlineComment(u.Map, false)
		options.Sourcemap = api.SourceMapExternal
		options.SourcesContent = api.SourcesContentInclude
	}
	result := api.Build(options)
	if len(result.Errors) > 0 {
		me := &derrors.ModuleError{Path: u.ID, Stage: "scan"}
		if loc := result.Errors[0].Location; loc != nil {
			me.Line = loc.Line
		}
		msgs := api.FormatMessages(result.Errors, api.FormatMessagesOptions{Kind: api.ErrorMessage})
		me.Err = fmt.Errorf("%w: %s", derrors.TransformFailed, strings.TrimSpace(strings.Join(msgs, "")))
		return nil, me
	}

	s := &scanned{}
	for _, f := range result.OutputFiles {
		if strings.HasSuffix(f.Path, ".map") {
			s.sourceMap = f.Contents
		} else {
			s.content = f.Contents
		}
	}
	if sawDynamic {
		if s.content, err = rewriteImports(s.content, marker); err != nil {
			return nil, &derrors.ModuleError{Path: u.ID, Stage: "scan", Err: err}
		}
	}
	if s.sourceMap != nil {
		s.sourceMap = keepSources(s.sourceMap, u.Map)
	}

	pos := make(map[string]int, len(calls))
	for _, c := range calls {
		pos[c.specifier] = position(u.Content, c.specifier)
	}
	sort.SliceStable(calls, func(i, j int) bool {
		return pos[calls[i].specifier] < pos[calls[j].specifier]
	})
	s.calls = calls
	return s, nil
}

// rewriteImports replaces each import() of a marked path in code with a
// call to __load of the unmarked path. The marker is overwritten with
// spaces before the opening quote.
func rewriteImports(code []byte, marker string) ([]byte, error) {
	out := append([]byte(nil), code...)
	n := 0
	for _, q := range []string{`"`, `'`, "`"} {
		needle := []byte(q + marker)
		for from := 0; ; {
			i := bytes.Index(out[from:], needle)
			if i < 0 {
				break
			}
			i += from
			j := bytes.LastIndex(out[:i], []byte("import("))
			if j < 0 {
				return nil, fmt.Errorf("%w: import() call for %q not found in scanned output", derrors.InternalConsistency, marker)
			}
			copy(out[j:], loadCall)
			copy(out[i:], strings.Repeat(" ", len(marker))+q)
			from = i + len(needle)
			n++
		}
	}
	if n == 0 || bytes.Contains(out, []byte(marker)) {
		return nil, fmt.Errorf("%w: unexpected form of import() calls in scanned output", derrors.InternalConsistency)
	}
	return out, nil
}

// keepSources restores the source names of the input map, which esbuild
// rewrites relative to its output file.
func keepSources(out, in []byte) []byte {
	om, err := sourcemap.Parse(out)
	if err != nil {
		return out
	}
	im, err := sourcemap.Parse(in)
	if err != nil || len(im.Sources) != len(om.Sources) {
		return out
	}
	om.Sources = im.Sources
	data, err := om.Marshal()
	if err != nil {
		return out
	}
	return data
}

// position returns the offset of the first quoted occurrence of spec in
// content, or len(content).
func position(content []byte, spec string) int {
	p := len(content)
	for _, q := range []string{`"`, `'`, "`"} {
		if i := bytes.Index(content, []byte(q+spec+q)); i >= 0 && i < p {
			p = i
		}
	}
	return p
}
