// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rules

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/cleveryg/lens/internal/buildenv"
	"github.com/cleveryg/lens/internal/derrors"
	"github.com/cleveryg/lens/internal/transform"
	"github.com/google/go-cmp/cmp"
)

func TestFirstMatchWins(t *testing.T) {
	spec := func(name string) []transform.Spec {
		return []transform.Spec{{Kind: transform.Script, Name: name}}
	}
	m, err := NewMatcher(
		&Rule{Name: "generated", Pattern: regexp.MustCompile(`\.gen\.js$`), Transforms: spec("generated")},
		&Rule{Name: "vendored", Pattern: regexp.MustCompile(`\.js$`), Exclude: regexp.MustCompile(`^src/`), Transforms: spec("vendored")},
		&Rule{Name: "any-js", Pattern: regexp.MustCompile(`\.js$`), Transforms: spec("any-js")},
		&Rule{Name: "catch-all", Pattern: regexp.MustCompile(`.`), Transforms: spec("catch-all")},
	)
	if err != nil {
		t.Fatal(err)
	}
	for _, test := range []struct {
		path, want string
	}{
		{"src/a.gen.js", "generated"},
		{"lib/a.gen.js", "generated"},
		{"lib/a.js", "vendored"},
		{"src/a.js", "any-js"},
		{"src/a.css", "catch-all"},
	} {
		got, err := m.Match(test.path)
		if err != nil {
			t.Fatalf("Match(%q): %v", test.path, err)
		}
		if got[0].Name != test.want {
			t.Errorf("Match(%q) = %s, want %s", test.path, got[0].Name, test.want)
		}
	}
}

func TestNoMatch(t *testing.T) {
	m, err := NewMatcher(&Rule{Pattern: regexp.MustCompile(`\.js$`)})
	if err != nil {
		t.Fatal(err)
	}
	_, err = m.Match("img/logo.svg")
	if !errors.Is(err, derrors.UnresolvedAssetType) {
		t.Fatalf("got %v, want UnresolvedAssetType", err)
	}
	var me *derrors.ModuleError
	if !errors.As(err, &me) || me.Path != "img/logo.svg" {
		t.Errorf("error %v does not name the path", err)
	}
	if !derrors.IsModuleLocal(err) {
		t.Error("error is not module-local")
	}
}

func TestNewMatcherRequiresPattern(t *testing.T) {
	if _, err := NewMatcher(&Rule{Name: "empty"}); !errors.Is(err, derrors.InvalidArgument) {
		t.Errorf("got %v, want InvalidArgument", err)
	}
}

func TestDefault(t *testing.T) {
	m := Default(buildenv.Env{SourceRoot: t.TempDir()})
	for _, test := range []struct {
		path, rule string
	}{
		{"addon.node", "native"},
		{"data.json", "json"},
		{"index.js", "javascript"},
		{"view.jsx", "javascript"},
		{"main.ts", "typescript"},
		{"App.tsx", "typescript"},
		{"App.vue", "component"},
		{"img/logo.png", "image"},
		{"app.js.map", "image"},
		{"fonts/a.woff2", "font"},
		{"fonts/a.woff", "font"},
		{"theme.scss", "scss"},
		{"reset.css", "css"},
	} {
		r := m.Rule(test.path)
		if r == nil {
			t.Errorf("%s: no rule", test.path)
			continue
		}
		if r.Name != test.rule {
			t.Errorf("%s: rule %s, want %s", test.path, r.Name, test.rule)
		}
	}
	for _, path := range []string{"node_modules/x/index.ts", "README.md", "logo.gif"} {
		if _, err := m.Match(path); !errors.Is(err, derrors.UnresolvedAssetType) {
			t.Errorf("Match(%q): got %v, want UnresolvedAssetType", path, err)
		}
	}
}

func TestDefaultStages(t *testing.T) {
	root := t.TempDir()
	m := Default(buildenv.Env{SourceRoot: root})
	got, err := m.Match("main.ts")
	if err != nil {
		t.Fatal(err)
	}
	want := []transform.Spec{
		{Kind: transform.Script, Options: map[string]string{"jsx": "preserve", "target": "es2016"}},
		{Kind: transform.Script, Options: map[string]string{"loader": "jsx", "format": "cjs"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("typescript stages mismatch (-want +got):\n%s", diff)
	}

	if err := os.WriteFile(filepath.Join(root, "tsconfig.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err = Default(buildenv.Env{SourceRoot: root}).Match("main.ts")
	if err != nil {
		t.Fatal(err)
	}
	if p := got[0].Options["tsconfig"]; p != filepath.Join(root, "tsconfig.json") {
		t.Errorf("tsconfig option = %q", p)
	}
}
