// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package graph

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/cleveryg/lens/internal/buildenv"
	"github.com/cleveryg/lens/internal/cache"
	"github.com/cleveryg/lens/internal/derrors"
	"github.com/cleveryg/lens/internal/rules"
	"github.com/cleveryg/lens/internal/testing/testhelper"
	"github.com/cleveryg/lens/internal/transform"
	"github.com/google/go-cmp/cmp"
)

func testEnv(t *testing.T, files map[string]string, entries ...string) buildenv.Env {
	t.Helper()
	root := testhelper.WriteTree(t, files)
	env := buildenv.Env{
		Mode:         buildenv.Production,
		SourceRoot:   root,
		OutputDir:    t.TempDir(),
		TemplatePath: filepath.Join(root, "index.html"),
		SourceMaps:   true,
	}
	for _, e := range entries {
		env.Entries = append(env.Entries, buildenv.Entry{Name: e, Path: filepath.Join(root, e)})
	}
	env, err := env.Validate()
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func TestDiscover(t *testing.T) {
	env := testEnv(t, map[string]string{
		"index.ts": `import { add } from "./util";
import { Chart } from "chart-lib";
import { ipcRenderer } from "electron";
export const about = () => import("./pages/about");
new Chart(add(1, 2), ipcRenderer);
`,
		"util.ts":        "export const add = (a: number, b: number) => a + b;\n",
		"pages/about.js": "import { add } from '../util';\nexport default add(2, 3);\n",
		"unused.js":      "syntax error here(",
	}, "index")

	g, err := NewDiscoverer(env, rules.Default(env), nil, "").Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"index.ts", "pages/about.js", "util.ts"}, g.IDs()); diff != "" {
		t.Errorf("modules mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Entry{{Name: "index", Module: "index.ts"}}, g.Entries); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
	want := []Dependency{
		{Specifier: "./util", Ref: LocalRef("util.ts")},
		{Specifier: "chart-lib", Ref: VendorRef("chart-lib")},
		{Specifier: "electron", Ref: ExternalRef("electron")},
		{Specifier: "./pages/about", Ref: LocalRef("pages/about.js"), Dynamic: true},
	}
	if diff := cmp.Diff(want, g.Module("index.ts").Dependencies); diff != "" {
		t.Errorf("index dependencies mismatch (-want +got):\n%s", diff)
	}
	if m := g.Module("util.ts"); m.Rule != "typescript" || len(m.Map) == 0 {
		t.Errorf("util.ts: rule %q, map %d bytes", m.Rule, len(m.Map))
	}
}

func TestDiscoverAggregatesErrors(t *testing.T) {
	env := testEnv(t, map[string]string{
		"index.js":  "require('./util');\nrequire('./logo.svg');\nrequire('./broken');\n",
		"util.js":   "module.exports = 1;\n",
		"logo.svg":  "<svg/>",
		"broken.js": "module.exports = (;\n",
	}, "index")
	m, err := rules.NewMatcher(&rules.Rule{
		Name:       "js",
		Pattern:    regexp.MustCompile(`\.js$`),
		Transforms: []transform.Spec{{Kind: transform.Script, Options: map[string]string{"format": "cjs"}}},
	})
	if err != nil {
		t.Fatal(err)
	}

	g, err := NewDiscoverer(env, m, nil, "").Discover(context.Background())
	var list derrors.List
	if !errors.As(err, &list) {
		t.Fatalf("got %v, want a derrors.List", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d errors, want 2:\n%v", len(list), err)
	}
	if !errors.Is(err, derrors.UnresolvedAssetType) || !errors.Is(err, derrors.TransformFailed) {
		t.Errorf("missing error category in:\n%v", err)
	}
	var me *derrors.ModuleError
	for _, e := range list {
		if errors.As(e, &me) && errors.Is(e, derrors.UnresolvedAssetType) && me.Path != "logo.svg" {
			t.Errorf("unresolved asset error names %q, want logo.svg", me.Path)
		}
	}
	if g == nil {
		t.Fatal("no graph returned with module errors")
	}
	if diff := cmp.Diff([]string{"index.js", "util.js"}, g.IDs()); diff != "" {
		t.Errorf("successful modules mismatch (-want +got):\n%s", diff)
	}
}

func TestDiscoverCache(t *testing.T) {
	env := testEnv(t, map[string]string{
		"index.js": "module.exports = require('./util');\n",
		"util.js":  "module.exports = 42;\n",
	}, "index")
	c := cache.NewMemory(1 << 20)
	for i := 0; i < 2; i++ {
		g, err := NewDiscoverer(env, rules.Default(env), c, "v1").Discover(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(g.Modules) != 2 {
			t.Fatalf("run %d: got %d modules", i, len(g.Modules))
		}
	}
	if n := c.Len(); n != 2 {
		t.Errorf("cache holds %d entries, want 2", n)
	}
}

func TestDiscoverCanceled(t *testing.T) {
	env := testEnv(t, map[string]string{"index.js": "module.exports = 1;\n"}, "index")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewDiscoverer(env, rules.Default(env), nil, "").Discover(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
