// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transform

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/cleveryg/lens/internal/buildenv"
	"github.com/cleveryg/lens/internal/derrors"
	"github.com/cleveryg/lens/internal/sourcemap"
	"github.com/google/go-cmp/cmp"
)

func apply(t *testing.T, spec Spec, env buildenv.Env, in *Unit) *Unit {
	t.Helper()
	tr, err := New(spec, env)
	if err != nil {
		t.Fatal(err)
	}
	out, err := tr.Apply(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestScriptJSON(t *testing.T) {
	out := apply(t, Spec{Kind: Script, Options: map[string]string{"loader": "json", "format": "cjs"}},
		testEnv(buildenv.Production, false),
		&Unit{ID: "data.json", Path: "/src/data.json", Content: []byte(`{"a": [1, 2]}`)})
	if !strings.Contains(string(out.Content), "module.exports") {
		t.Errorf("json module does not export:\n%s", out.Content)
	}
	if out.Map != nil {
		t.Errorf("map produced with maps disabled")
	}
}

func TestScriptKeepsDynamicImport(t *testing.T) {
	out := apply(t, Spec{Kind: Script, Options: map[string]string{"target": "es2016", "format": "cjs"}},
		testEnv(buildenv.Production, true),
		&Unit{ID: "lazy.js", Path: "/src/lazy.js", Content: []byte(`export const load = () => import("./page");` + "\n")})
	if !strings.Contains(string(out.Content), `import("./page")`) {
		t.Errorf("dynamic import was rewritten:\n%s", out.Content)
	}
}

func TestStyle(t *testing.T) {
	in := &Unit{ID: "app.css", Path: "/src/app.css", Content: []byte("a { color: red }\n")}
	spec := Spec{Kind: Style}

	prod := apply(t, spec, testEnv(buildenv.Production, true), in)
	if len(prod.Content) != 0 {
		t.Errorf("production content = %q, want empty", prod.Content)
	}
	if !strings.Contains(string(prod.Styles), "color: red") {
		t.Errorf("production styles = %q", prod.Styles)
	}
	if !prod.Generated || prod.Map != nil {
		t.Errorf("production: Generated = %t, Map = %q", prod.Generated, prod.Map)
	}

	dev := apply(t, spec, testEnv(buildenv.Development, true), in)
	if len(dev.Styles) != 0 {
		t.Errorf("development styles = %q, want none", dev.Styles)
	}
	for _, want := range []string{`document.createElement("style")`, `"app.css"`, "color: red", "sourceMappingURL=data:"} {
		if !strings.Contains(string(dev.Content), want) {
			t.Errorf("development content does not contain %q:\n%s", want, dev.Content)
		}
	}
}

func TestFile(t *testing.T) {
	data := []byte("<svg/>")
	for _, test := range []struct {
		tmpl, want string
	}{
		{"[name].[ext]", "logo.svg"},
		{"fonts/[name].[ext]", "fonts/logo.svg"},
		{"assets/[name]-[hash:6].[ext]", "assets/logo-" + assetName("[hash:6]", "x", data) + ".svg"},
	} {
		got := assetName(test.tmpl, "/src/img/logo.svg", data)
		if got != test.want {
			t.Errorf("assetName(%q) = %q, want %q", test.tmpl, got, test.want)
		}
	}
	if h := assetName("[hash]", "x", data); len(h) != 20 {
		t.Errorf("[hash] = %q, want 20 digits", h)
	}

	out := apply(t, Spec{Kind: Binary, Options: map[string]string{"name": "fonts/[name].[ext]"}},
		testEnv(buildenv.Production, true),
		&Unit{ID: "font.woff2", Path: "/src/font.woff2", Content: []byte{0, 1, 2}})
	if diff := cmp.Diff([]Asset{{Name: "fonts/font.woff2", Data: []byte{0, 1, 2}}}, out.Assets); diff != "" {
		t.Errorf("assets mismatch (-want +got):\n%s", diff)
	}
	if got, want := string(out.Content), "module.exports = \"fonts/font.woff2\";\n"; got != want {
		t.Errorf("content = %q, want %q", got, want)
	}
}

func TestNative(t *testing.T) {
	out := apply(t, Spec{Kind: Binary, Options: map[string]string{"native": "true"}},
		testEnv(buildenv.Production, true),
		&Unit{ID: "addon.node", Path: "/src/addon.node", Content: []byte("ELF")})
	if len(out.Assets) != 1 || !strings.HasPrefix(out.Assets[0].Name, "addon-") {
		t.Fatalf("assets = %+v", out.Assets)
	}
	if !strings.Contains(string(out.Content), "process.dlopen(module") {
		t.Errorf("content = %q", out.Content)
	}
}

const component = `<template>
  <div class="hello">
    <template v-if="ok">{{ msg }}</template>
  </div>
</template>

<script lang="ts">
export default {
  data(): { msg: string } {
    return { msg: "hi" };
  },
};
</script>

<style>
.hello { color: blue }
</style>
`

func TestSplitBlocks(t *testing.T) {
	blocks, err := splitBlocks([]byte(component))
	if err != nil {
		t.Fatal(err)
	}
	var tags []string
	for _, b := range blocks {
		tags = append(tags, b.tag)
	}
	if diff := cmp.Diff([]string{"template", "script", "style"}, tags); diff != "" {
		t.Fatalf("blocks mismatch (-want +got):\n%s", diff)
	}
	tmpl := strings.TrimSpace(component[blocks[0].start:blocks[0].end])
	if !strings.HasSuffix(tmpl, "</div>") {
		t.Errorf("template block = %q", tmpl)
	}
	if got := blocks[1].attrs["lang"]; got != "ts" {
		t.Errorf("script lang = %q", got)
	}
	if got := lineAt([]byte(component), blocks[1].start); got != 7 {
		t.Errorf("script starts on line %d, want 7", got)
	}
}

func TestTemplate(t *testing.T) {
	in := &Unit{ID: "Hello.vue", Path: "/src/Hello.vue", Content: []byte(component)}
	out := apply(t, Spec{Kind: Template}, testEnv(buildenv.Production, true), in)
	for _, want := range []string{"c.template = ", `\u003cdiv class=\"hello\"\u003e`, "module.exports"} {
		if !strings.Contains(string(out.Content), want) {
			t.Errorf("content does not contain %q:\n%s", want, out.Content)
		}
	}
	if !strings.Contains(string(out.Styles), "color: blue") {
		t.Errorf("styles = %q", out.Styles)
	}
	m, err := sourcemap.Parse(out.Map)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Hello.vue"}, m.Sources); diff != "" {
		t.Errorf("sources mismatch (-want +got):\n%s", diff)
	}
	lines, err := m.Lines()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, segs := range lines {
		for _, s := range segs {
			if s.Source == 0 && s.OrigLine == 8 {
				found = true
			}
		}
	}
	if !found {
		t.Error("no mapping for the data() line of the component")
	}
}

func TestTemplateWithoutScript(t *testing.T) {
	in := &Unit{ID: "Static.vue", Path: "/src/Static.vue", Content: []byte("<template><p>static</p></template>\n")}
	out := apply(t, Spec{Kind: Template}, testEnv(buildenv.Development, true), in)
	if got, want := string(out.Content), "module.exports = {template: \"\\u003cp\\u003estatic\\u003c/p\\u003e\"};\n"; got != want {
		t.Errorf("content = %q, want %q", got, want)
	}
	if !out.Generated {
		t.Error("Generated = false")
	}
}

func TestTemplateErrors(t *testing.T) {
	for _, test := range []struct {
		name, src string
		line      int
	}{
		{"bad script", "<template><p/></template>\n<script>\nexport default {\n  a: ,\n};\n</script>\n", 4},
		{"unclosed", "<template>\n<p/>\n", 1},
		{"scoped", "<template><p/></template>\n<style scoped>\np {}\n</style>\n", 2},
		{"two scripts", "<script></script>\n<script></script>\n", 2},
	} {
		t.Run(test.name, func(t *testing.T) {
			tr, err := New(Spec{Kind: Template}, testEnv(buildenv.Production, true))
			if err != nil {
				t.Fatal(err)
			}
			_, err = tr.Apply(context.Background(), &Unit{ID: "C.vue", Path: "/src/C.vue", Content: []byte(test.src)})
			var se *stageError
			if !errors.As(err, &se) {
				t.Fatalf("got %v, want a stage error", err)
			}
			if se.line != test.line {
				t.Errorf("line = %d, want %d (%v)", se.line, test.line, err)
			}
		})
	}
}

func TestSass(t *testing.T) {
	if _, err := exec.LookPath("sass"); err != nil {
		t.Skip("sass not installed")
	}
	env := testEnv(buildenv.Production, true)
	out := apply(t, Spec{Kind: Style, Options: map[string]string{"preprocessor": "sass"}}, env,
		&Unit{ID: "a.scss", Path: "/src/a.scss", Content: []byte("$c: red;\na { b { color: $c; } }\n")})
	if !strings.Contains(string(out.Content), "a b {") {
		t.Errorf("content = %q", out.Content)
	}
	if !strings.Contains(string(out.Map), `"a.scss"`) {
		t.Errorf("map = %s", out.Map)
	}

	tr, err := New(Spec{Kind: Style, Options: map[string]string{"preprocessor": "sass"}}, env)
	if err != nil {
		t.Fatal(err)
	}
	_, err = tr.Apply(context.Background(), &Unit{ID: "b.scss", Path: "/src/b.scss", Content: []byte("a {\n  color: red\n  b: c;\n}\n")})
	var se *stageError
	if !errors.As(err, &se) || se.line == 0 {
		t.Errorf("got %v, want a stage error with a line", err)
	}
}

func TestSassMissingExecutable(t *testing.T) {
	env := testEnv(buildenv.Production, false)
	env.SassPath = "/nonexistent/sass"
	c, err := NewChain([]Spec{{Kind: Style, Options: map[string]string{"preprocessor": "sass"}}}, env)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Run(context.Background(), &Unit{ID: "a.scss", Path: "/src/a.scss", Content: []byte("a {}")})
	if !errors.Is(err, derrors.TransformFailed) {
		t.Errorf("got %v, want TransformFailed", err)
	}
}
