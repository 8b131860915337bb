// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rules selects the transformation chain for a file.
package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/cleveryg/lens/internal/buildenv"
	"github.com/cleveryg/lens/internal/derrors"
	"github.com/cleveryg/lens/internal/transform"
)

// A Rule pairs a path pattern with the stages that files matching it go
// through.
type Rule struct {
	Name       string
	Pattern    *regexp.Regexp
	Exclude    *regexp.Regexp // optional
	Transforms []transform.Spec
}

func (r *Rule) matches(path string) bool {
	return r.Pattern.MatchString(path) && (r.Exclude == nil || !r.Exclude.MatchString(path))
}

// A Matcher holds rules in priority order.
type Matcher struct {
	rules []*Rule
}

// NewMatcher returns a Matcher over rules, which are tried in order.
func NewMatcher(rules ...*Rule) (*Matcher, error) {
	for i, r := range rules {
		if r.Pattern == nil {
			return nil, fmt.Errorf("%w: rule %d (%s) has no pattern", derrors.InvalidArgument, i, r.Name)
		}
	}
	return &Matcher{rules: rules}, nil
}

// Match returns the stages of the first rule whose pattern matches path and
// whose exclude pattern does not. The returned slice is the rule's own and
// must not be modified. If no rule applies, Match returns a
// *derrors.ModuleError wrapping derrors.UnresolvedAssetType.
func (m *Matcher) Match(path string) ([]transform.Spec, error) {
	if r := m.Rule(path); r != nil {
		return r.Transforms, nil
	}
	return nil, &derrors.ModuleError{
		Path: path,
		Err:  fmt.Errorf("%w: no rule matches", derrors.UnresolvedAssetType),
	}
}

// Rule returns the rule that applies to path, or nil.
func (m *Matcher) Rule(path string) *Rule {
	for _, r := range m.rules {
		if r.matches(path) {
			return r
		}
	}
	return nil
}

// Rules returns the matcher's rules in priority order.
func (m *Matcher) Rules() []*Rule {
	return m.rules
}

func script(opts ...string) transform.Spec {
	return transform.Spec{Kind: transform.Script, Options: options(opts)}
}

func options(kv []string) map[string]string {
	if len(kv) == 0 {
		return nil
	}
	m := map[string]string{}
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			m[kv[i]] = kv[i+1]
		}
	}
	return m
}

// Default returns the renderer rule set. Native addons come before
// scripts, and TypeScript under node_modules is left unmatched.
func Default(env buildenv.Env) *Matcher {
	rules := []*Rule{
		{
			Name:       "native",
			Pattern:    regexp.MustCompile(`\.node$`),
			Transforms: []transform.Spec{{Kind: transform.Binary, Options: map[string]string{"native": "true"}}},
		},
		{
			Name:       "json",
			Pattern:    regexp.MustCompile(`\.json$`),
			Transforms: []transform.Spec{script("loader", "json", "format", "cjs")},
		},
		{
			Name:       "javascript",
			Pattern:    regexp.MustCompile(`\.jsx?$`),
			Transforms: []transform.Spec{script("loader", "jsx", "format", "cjs")},
		},
		{
			Name:    "typescript",
			Pattern: regexp.MustCompile(`\.tsx?$`),
			Exclude: regexp.MustCompile(`(^|/)node_modules/`),
			Transforms: []transform.Spec{
				script("jsx", "preserve", "target", "es2016", "tsconfig", tsconfig(env)),
				script("loader", "jsx", "format", "cjs"),
			},
		},
		{
			Name:    "component",
			Pattern: regexp.MustCompile(`\.vue$`),
			Transforms: []transform.Spec{
				{Kind: transform.Template},
				script("loader", "js"),
			},
		},
		{
			Name:       "image",
			Pattern:    regexp.MustCompile(`\.(jpg|png|svg|map|ico)$`),
			Transforms: []transform.Spec{{Kind: transform.Binary, Options: map[string]string{"name": "assets/[name]-[hash:6].[ext]"}}},
		},
		{
			Name:       "font",
			Pattern:    regexp.MustCompile(`\.(ttf|eot|woff2?)$`),
			Transforms: []transform.Spec{{Kind: transform.Binary, Options: map[string]string{"name": "fonts/[name].[ext]"}}},
		},
		{
			Name:    "scss",
			Pattern: regexp.MustCompile(`\.scss$`),
			Transforms: []transform.Spec{
				{Kind: transform.Style, Options: map[string]string{"preprocessor": "sass"}},
				{Kind: transform.Style},
			},
		},
		{
			Name:       "css",
			Pattern:    regexp.MustCompile(`\.css$`),
			Transforms: []transform.Spec{{Kind: transform.Style}},
		},
	}
	m, _ := NewMatcher(rules...)
	return m
}

// tsconfig returns the tsconfig.json at the source root, or "" if there is
// none.
func tsconfig(env buildenv.Env) string {
	p := filepath.Join(env.SourceRoot, "tsconfig.json")
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}
