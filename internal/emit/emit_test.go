// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package emit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cleveryg/lens/internal/buildenv"
	"github.com/cleveryg/lens/internal/bundle"
	"github.com/cleveryg/lens/internal/derrors"
	"github.com/cleveryg/lens/internal/sourcemap"
	"github.com/cleveryg/lens/internal/testing/testhelper"
	"github.com/cleveryg/lens/internal/transform"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/net/html"
)

func testEnv(t *testing.T, mode buildenv.Mode) buildenv.Env {
	t.Helper()
	dir := testhelper.WriteTree(t, map[string]string{"index.html": testhelper.Template})
	return buildenv.Env{
		Mode:         mode,
		SourceRoot:   dir,
		OutputDir:    filepath.Join(dir, "dist"),
		TemplatePath: filepath.Join(dir, "index.html"),
		Title:        "Lens",
	}
}

func testScripts() []*bundle.Script {
	m := &sourcemap.Map{Version: 3, Sources: []string{"index.js"}, Mappings: "AAAA"}
	return []*bundle.Script{
		{
			Name:   "chunks/about",
			Code:   []byte("about();\n"),
			Styles: []byte(".about{color:red}\n"),
			Assets: []transform.Asset{{Name: "logo.png", Data: []byte("png")}},
		},
		{
			Name:    "index",
			Entry:   true,
			Code:    []byte("index();\n"),
			Map:     m,
			Styles:  []byte("body{margin:0}\n"),
			License: []byte("Detected licenses: MIT\n"),
			Assets:  []transform.Asset{{Name: "logo.png", Data: []byte("png")}},
		},
	}
}

// injected returns the stylesheet hrefs in the head and the script srcs in
// the body of doc, in order.
func injected(t *testing.T, doc string) (styles, scripts []string) {
	t.Helper()
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	attr := func(n *html.Node, key string) string {
		for _, a := range n.Attr {
			if a.Key == key {
				return a.Val
			}
		}
		return ""
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "link":
				if n.Parent.Data != "head" {
					t.Errorf("link %q in %s, want head", attr(n, "href"), n.Parent.Data)
				}
				styles = append(styles, attr(n, "href"))
			case "script":
				if n.Parent.Data != "body" {
					t.Errorf("script %q in %s, want body", attr(n, "src"), n.Parent.Data)
				}
				scripts = append(scripts, attr(n, "src"))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return styles, scripts
}

func TestEmitDevelopment(t *testing.T) {
	ctx := context.Background()
	env := testEnv(t, buildenv.Development)
	arts, err := New(env).Emit(ctx, testScripts(), nil)
	if err != nil {
		t.Fatal(err)
	}
	files := testhelper.ReadTree(t, env.OutputDir)
	want := []string{"chunks/about.js", "index.LICENSE.txt", "index.html", "index.js", "logo.png"}
	if diff := cmp.Diff(want, testhelper.Names(files)); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, Paths(arts)); diff != "" {
		t.Errorf("Paths mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(files["index.js"], "//# sourceMappingURL=data:application/json;base64,") {
		t.Errorf("index.js has no inline map:\n%s", files["index.js"])
	}
	if strings.Contains(files["chunks/about.js"], "sourceMappingURL") {
		t.Errorf("chunks/about.js has a map comment but no map")
	}
	doc := files["index.html"]
	if !strings.Contains(doc, "<title>Lens</title>") {
		t.Errorf("title not rendered:\n%s", doc)
	}
	styles, scripts := injected(t, doc)
	if len(styles) != 0 {
		t.Errorf("styles = %v, want none in development", styles)
	}
	if diff := cmp.Diff([]string{"index.js"}, scripts); diff != "" {
		t.Errorf("scripts mismatch (-want +got):\n%s", diff)
	}
}

func TestEmitProduction(t *testing.T) {
	ctx := context.Background()
	env := testEnv(t, buildenv.Production)
	e := New(env)
	scripts := testScripts()
	prelude := []Artifact{{Kind: Script, Path: "vendor.js", Content: []byte("var vendor;\n")}}
	if _, err := e.Emit(ctx, scripts, prelude); err != nil {
		t.Fatal(err)
	}
	files := testhelper.ReadTree(t, env.OutputDir)
	index := e.Files(scripts[1])
	about := e.Files(scripts[0])
	if !strings.HasPrefix(index.JS, "index.") || len(index.JS) != len("index.12345678.js") {
		t.Errorf("index name = %q, want a hashed name", index.JS)
	}
	for _, name := range []string{index.JS, index.JS + ".map", index.CSS, about.JS, about.CSS, "vendor.js", "index.LICENSE.txt"} {
		if _, ok := files[name]; !ok {
			t.Errorf("missing %s; have %v", name, testhelper.Names(files))
		}
	}
	if got, want := files[index.JS], "index();\n//# sourceMappingURL="+index.JS+".map\n"; got != want {
		t.Errorf("%s = %q, want %q", index.JS, got, want)
	}
	m, err := sourcemap.Parse([]byte(files[index.JS+".map"]))
	if err != nil {
		t.Fatal(err)
	}
	if m.File != index.JS {
		t.Errorf("map file = %q, want %q", m.File, index.JS)
	}
	styles, injectedScripts := injected(t, files["index.html"])
	if diff := cmp.Diff([]string{index.CSS}, styles); diff != "" {
		t.Errorf("styles mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"vendor.js", index.JS}, injectedScripts); diff != "" {
		t.Errorf("scripts mismatch (-want +got):\n%s", diff)
	}
}

func TestFilesStable(t *testing.T) {
	e := New(buildenv.Env{Mode: buildenv.Production})
	s := &bundle.Script{Name: "index", Code: []byte("a();")}
	a, b := e.Files(s), e.Files(s)
	if a != b {
		t.Errorf("Files not stable: %v, %v", a, b)
	}
	s.Code = []byte("b();")
	if c := e.Files(s); c.JS == a.JS {
		t.Errorf("different content, same name %q", c.JS)
	}
	if a.CSS != "" {
		t.Errorf("CSS = %q without styles", a.CSS)
	}
}

func TestMissingTemplate(t *testing.T) {
	env := testEnv(t, buildenv.Development)
	env.TemplatePath = filepath.Join(env.SourceRoot, "nope.html")
	_, err := New(env).Emit(context.Background(), testScripts(), nil)
	if !errors.Is(err, derrors.MissingTemplate) {
		t.Fatalf("got %v, want MissingTemplate", err)
	}
	if _, err := os.Stat(env.OutputDir); !os.IsNotExist(err) {
		t.Errorf("output directory created after failure: %v", err)
	}
}

func TestRenderConflicts(t *testing.T) {
	env := testEnv(t, buildenv.Development)
	scripts := testScripts()
	scripts[0].Assets[0].Data = []byte("other")
	if _, err := New(env).Render(context.Background(), scripts, nil); !errors.Is(err, derrors.InternalConsistency) {
		t.Errorf("conflicting assets: got %v, want InternalConsistency", err)
	}

	scripts = testScripts()
	prelude := []Artifact{{Kind: Script, Path: "index.js"}}
	if _, err := New(env).Render(context.Background(), scripts, prelude); !errors.Is(err, derrors.InternalConsistency) {
		t.Errorf("duplicate path: got %v, want InternalConsistency", err)
	}
}

func TestWriteFailureLeavesNoTemporaries(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "blocked"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	arts := []Artifact{
		{Kind: Script, Path: "a.js", Content: []byte("a")},
		{Kind: Asset, Path: "blocked/b.png", Content: []byte("b")},
	}
	if err := Write(context.Background(), dir, arts); err == nil {
		t.Fatal("got nil, want error")
	}
	got := testhelper.Names(testhelper.ReadTree(t, dir))
	if diff := cmp.Diff([]string{"blocked"}, got); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
}

func TestDocumentName(t *testing.T) {
	for _, test := range []struct {
		in, want string
	}{
		{"/src/index.html", "index.html"},
		{"/src/index.html.tmpl", "index.html"},
		{"/src/app.tmpl", "app.html"},
	} {
		if got := documentName(test.in); got != test.want {
			t.Errorf("documentName(%q) = %q, want %q", test.in, got, test.want)
		}
	}
}
