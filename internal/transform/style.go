// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/cleveryg/lens/internal/buildenv"
	"github.com/cleveryg/lens/internal/sourcemap"
	"github.com/evanw/esbuild/pkg/api"
)

// style compiles CSS with esbuild. In Production the result is moved into
// the unit's Styles and the module body becomes empty; in Development the
// module body injects a <style> element when it is evaluated.
type style struct {
	name string
	env  buildenv.Env
}

func newStyle(spec Spec, env buildenv.Env) (*style, error) {
	return &style{name: name(spec, "css"), env: env}, nil
}

func (s *style) Name() string { return s.name }

func (s *style) Apply(ctx context.Context, in *Unit) (*Unit, error) {
	css, m, err := compileCSS(in, s.env)
	if err != nil {
		return nil, err
	}
	out := in.clone()
	out.Map = nil
	out.Generated = true
	if s.env.Mode == buildenv.Production {
		if len(out.Styles) > 0 && !bytes.HasSuffix(out.Styles, []byte("\n")) {
			out.Styles = append(out.Styles, '\n')
		}
		out.Styles = append(out.Styles, css...)
		out.Content = nil
		return out, nil
	}
	if m != nil {
		css = append(bytes.TrimRight(css, "\n"), '\n')
		css = append(css, sourcemap.InlineComment(m, true)...)
	}
	out.Content = []byte(injector(in.ID, string(css)))
	return out, nil
}

func compileCSS(in *Unit, env buildenv.Env) (css, m []byte, err error) {
	return esbuildTransform(in, api.TransformOptions{Loader: api.LoaderCSS}, env)
}

// injector returns script text that appends css to the document head,
// replacing an element injected earlier for the same module.
func injector(id, css string) string {
	idJSON, _ := json.Marshal(id)
	cssJSON, _ := json.Marshal(css)
	return fmt.Sprintf(`(function (id, css) {
  var el = document.querySelector('style[data-lens-module="' + id + '"]');
  if (!el) {
    el = document.createElement("style");
    el.setAttribute("data-lens-module", id);
    document.head.appendChild(el);
  }
  el.textContent = css;
})(%s, %s);
`, idJSON, cssJSON)
}

// sass runs the sass executable over SCSS input. The shared stylesheet, if
// configured, is imported at the top of every file, and its directory is
// added to the load path.
type sass struct {
	name string
	env  buildenv.Env
}

func newSass(spec Spec, env buildenv.Env) (*sass, error) {
	return &sass{name: name(spec, "sass"), env: env}, nil
}

func (s *sass) Name() string { return s.name }

var sassLine = regexp.MustCompile(`(\d+):(\d+)\s+root stylesheet`)

func (s *sass) Apply(ctx context.Context, in *Unit) (*Unit, error) {
	out, err := runSass(ctx, in.ID, in.Path, in.Content, s.env)
	if err != nil {
		return nil, err
	}
	u := in.clone()
	u.Content = out.css
	u.Map = out.m
	u.Generated = false
	return u, nil
}

type sassOutput struct {
	css []byte
	m   []byte
}

func runSass(ctx context.Context, id, path string, src []byte, env buildenv.Env) (*sassOutput, error) {
	args := []string{"--stdin", "--no-charset", "--style=expanded"}
	var prefix string
	loadPaths := []string{filepath.Dir(path)}
	if env.SharedStylePath != "" {
		dir := filepath.Dir(env.SharedStylePath)
		loadPaths = append(loadPaths, dir)
		base := strings.TrimSuffix(filepath.Base(env.SharedStylePath), filepath.Ext(env.SharedStylePath))
		// Kept on the first line so the lines of src keep their numbers.
		prefix = fmt.Sprintf("@import %q; ", strings.TrimPrefix(base, "_"))
	}
	for _, p := range loadPaths {
		args = append(args, "--load-path="+p)
	}
	if env.SourceMaps {
		args = append(args, "--embed-source-map", "--embed-sources")
	} else {
		args = append(args, "--no-source-map")
	}

	cmd := exec.CommandContext(ctx, env.SassPath, args...)
	cmd.Stdin = strings.NewReader(prefix + string(src))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var ee *exec.ExitError
		if !errors.As(err, &ee) {
			return nil, fmt.Errorf("running %s: %v", env.SassPath, err)
		}
		se := &stageError{msg: firstLine(stderr.String())}
		if m := sassLine.FindStringSubmatch(stderr.String()); m != nil {
			se.line, _ = strconv.Atoi(m[1])
		}
		if se.msg == "" {
			se.msg = err.Error()
		}
		return nil, se
	}
	body, data, ok := sourcemap.ExtractInline(stdout.Bytes())
	out := &sassOutput{css: append(body, '\n')}
	if !env.SourceMaps {
		return out, nil
	}
	if !ok {
		return nil, errors.New("sass produced no source map")
	}
	m, err := sourcemap.Parse(data)
	if err != nil {
		return nil, err
	}
	for i, src := range m.Sources {
		m.Sources[i] = sassSource(src, id, env)
	}
	if out.m, err = m.Marshal(); err != nil {
		return nil, err
	}
	return out, nil
}

// sassSource maps a source URL reported by sass to a module-style name.
func sassSource(src, id string, env buildenv.Env) string {
	if src == "" || src == "-" || src == "stdin" || strings.HasPrefix(src, "data:") {
		return id
	}
	if u, err := url.Parse(src); err == nil && u.Scheme == "file" {
		return env.Rel(filepath.FromSlash(u.Path))
	}
	return src
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimPrefix(s, "Error: ")
}
