// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cleveryg/lens/internal/buildenv"
	"github.com/cleveryg/lens/internal/sourcemap"
	"github.com/evanw/esbuild/pkg/api"
	"golang.org/x/net/html"
)

// template compiles a single-file component: a file holding top-level
// <template>, <script> and <style> blocks. The script block is compiled to
// CommonJS, the template markup is attached to its exported component as a
// string, and style blocks are handled as the style stage handles CSS.
type template struct {
	name string
	env  buildenv.Env
}

func newTemplate(spec Spec, env buildenv.Env) (*template, error) {
	return &template{name: name(spec, "sfc"), env: env}, nil
}

func (t *template) Name() string { return t.name }

// A block is a top-level element of a component file. Start and end are
// the byte offsets of its content.
type block struct {
	tag        string
	attrs      map[string]string
	start, end int
}

func (t *template) Apply(ctx context.Context, in *Unit) (*Unit, error) {
	blocks, err := splitBlocks(in.Content)
	if err != nil {
		return nil, err
	}
	var tmpl, script *block
	var styles []*block
	for _, b := range blocks {
		switch b.tag {
		case "template":
			if tmpl != nil {
				return nil, blockError(in.Content, b, "more than one <template> block")
			}
			tmpl = b
		case "script":
			if script != nil {
				return nil, blockError(in.Content, b, "more than one <script> block")
			}
			script = b
		case "style":
			styles = append(styles, b)
		}
	}

	out := in.clone()
	out.Generated = false
	var markup []byte
	if tmpl != nil {
		markup = bytes.TrimSpace(in.Content[tmpl.start:tmpl.end])
	}
	if script == nil {
		out.Map = nil
		out.Generated = true
		if tmpl == nil {
			out.Content = []byte("module.exports = {};\n")
		} else {
			js, _ := json.Marshal(string(markup))
			out.Content = []byte(fmt.Sprintf("module.exports = {template: %s};\n", js))
		}
	} else {
		loader := api.LoaderJS
		switch script.attrs["lang"] {
		case "", "js":
		case "ts":
			loader = api.LoaderTS
		case "tsx":
			loader = api.LoaderTSX
		case "jsx":
			loader = api.LoaderJSX
		default:
			return nil, blockError(in.Content, script, fmt.Sprintf("unsupported script lang %q", script.attrs["lang"]))
		}
		src := &Unit{ID: in.ID, Path: in.Path, Content: blank(in.Content, script), Map: in.Map}
		code, m, err := esbuildTransform(src, api.TransformOptions{
			Loader:    loader,
			Format:    api.FormatCommonJS,
			Target:    api.ESNext,
			Supported: map[string]bool{"dynamic-import": true},
		}, t.env)
		if err != nil {
			return nil, err
		}
		out.Content = code
		out.Map = m
		if tmpl != nil {
			js, _ := json.Marshal(string(markup))
			out.Content = append(out.Content, fmt.Sprintf(
				";(function (c) { if (c) c.template = %s; })(module.exports.__esModule ? module.exports.default : module.exports);\n", js)...)
		}
	}

	for _, b := range styles {
		if _, ok := b.attrs["scoped"]; ok {
			return nil, blockError(in.Content, b, "scoped styles are not supported")
		}
		css := &Unit{ID: in.ID, Path: in.Path, Content: blank(in.Content, b)}
		switch b.attrs["lang"] {
		case "", "css":
		case "scss":
			res, err := runSass(ctx, in.ID, in.Path, css.Content, t.env)
			if err != nil {
				return nil, err
			}
			css.Content, css.Map = res.css, res.m
		default:
			return nil, blockError(in.Content, b, fmt.Sprintf("unsupported style lang %q", b.attrs["lang"]))
		}
		compiled, m, err := compileCSS(css, t.env)
		if err != nil {
			return nil, err
		}
		if t.env.Mode == buildenv.Production {
			out.Styles = append(out.Styles, compiled...)
			continue
		}
		if m != nil {
			compiled = append(bytes.TrimRight(compiled, "\n"), '\n')
			compiled = append(compiled, sourcemap.InlineComment(m, true)...)
		}
		out.Content = append(out.Content, injector(in.ID, string(compiled))...)
	}
	return out, nil
}

// splitBlocks returns the top-level blocks of a component file.
func splitBlocks(src []byte) ([]*block, error) {
	z := html.NewTokenizer(bytes.NewReader(src))
	var (
		blocks []*block
		cur    *block
		depth  int // nesting of <template> inside the open template block
		offset int
	)
	for {
		tt := z.Next()
		raw := len(z.Raw())
		switch tt {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				if cur != nil {
					return nil, &stageError{line: lineAt(src, cur.start), msg: fmt.Sprintf("unclosed <%s> block", cur.tag)}
				}
				return blocks, nil
			}
			return nil, z.Err()
		case html.StartTagToken:
			tn, hasAttr := z.TagName()
			tag := string(tn)
			if cur == nil {
				attrs := map[string]string{}
				for hasAttr {
					var k, v []byte
					k, v, hasAttr = z.TagAttr()
					attrs[string(k)] = string(v)
				}
				cur = &block{tag: tag, attrs: attrs, start: offset + raw}
			} else if cur.tag == "template" && tag == "template" {
				depth++
			}
		case html.EndTagToken:
			tn, _ := z.TagName()
			if cur != nil && string(tn) == cur.tag {
				if depth > 0 {
					depth--
					break
				}
				cur.end = offset
				blocks = append(blocks, cur)
				cur = nil
			}
		}
		offset += raw
	}
}

// blank returns a copy of src in which everything outside b's content is
// replaced by spaces, keeping newlines. Compiling the result yields source
// positions that refer to the component file itself.
func blank(src []byte, b *block) []byte {
	out := make([]byte, len(src))
	for i, c := range src {
		switch {
		case i >= b.start && i < b.end:
			out[i] = c
		case c == '\n':
			out[i] = '\n'
		default:
			out[i] = ' '
		}
	}
	return out
}

func lineAt(src []byte, offset int) int {
	return bytes.Count(src[:offset], []byte("\n")) + 1
}

func blockError(src []byte, b *block, msg string) error {
	return &stageError{line: lineAt(src, b.start), msg: strings.TrimSpace(msg)}
}
