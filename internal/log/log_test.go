// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package log

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type recorder struct {
	entries []string
}

func (r *recorder) Log(ctx context.Context, s Severity, payload any) {
	r.entries = append(r.entries, fmt.Sprintf("%s %v", s, payload))
}

func (r *recorder) Flush() {}

// withLogger installs l and restores the previous logger and level when the
// test ends. Tests using it must not run in parallel.
func withLogger(t *testing.T, l Logger) {
	t.Helper()
	oldLogger, oldLevel := logger, getLevel()
	t.Cleanup(func() {
		Use(oldLogger)
		mu.Lock()
		currentLevel = oldLevel
		mu.Unlock()
	})
	Use(l)
}

func TestToLevel(t *testing.T) {
	withLogger(t, &recorder{})
	for _, test := range []struct {
		in   string
		want Severity
	}{
		{"", SeverityDefault},
		{"bogus", SeverityDefault},
		{"debug", SeverityDebug},
		{"INFO", SeverityInfo},
		{"warning", SeverityWarning},
		{"error", SeverityError},
		{"fatal", SeverityCritical},
	} {
		if got := toLevel(test.in); got != test.want {
			t.Errorf("toLevel(%q) = %s, want %s", test.in, got, test.want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	ctx := context.Background()
	for _, test := range []struct {
		level string
		want  []string
	}{
		{"", []string{"Debug transform", "Info wave", "Warning cache", "Error emit"}},
		{"info", []string{"Info wave", "Warning cache", "Error emit"}},
		{"error", []string{"Error emit"}},
	} {
		t.Run(test.level, func(t *testing.T) {
			r := &recorder{}
			withLogger(t, r)
			SetLevel(test.level)
			Debugf(ctx, "transform")
			Info(ctx, "wave")
			Warningf(ctx, "%s", "cache")
			Error(ctx, errors.New("emit"))
			if diff := cmp.Diff(test.want, r.entries); diff != "" {
				t.Errorf("entries mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCharmOutput(t *testing.T) {
	withLogger(t, &recorder{})
	SetLevel("")
	var buf bytes.Buffer
	SetOutput(&buf)

	ctx := NewContextWithLabel(context.Background(), "module", "src/index.ts")
	ctx = NewContextWithLabel(ctx, "chunk", "renderer")
	Warningf(ctx, "slow stage %s", "esbuild-ts")

	got := buf.String()
	for _, want := range []string{"lens", "slow stage esbuild-ts", "chunk=renderer", "module=src/index.ts"} {
		if !strings.Contains(got, want) {
			t.Errorf("log output %q does not contain %q", got, want)
		}
	}
	if i, j := strings.Index(got, "chunk="), strings.Index(got, "module="); i > j {
		t.Errorf("labels not sorted: %q", got)
	}
}

func TestLabelsAreCopied(t *testing.T) {
	parent := NewContextWithLabel(context.Background(), "module", "a.js")
	child := NewContextWithLabel(parent, "module", "b.js")
	if got := parent.Value(labelsKey{}).(map[string]string)["module"]; got != "a.js" {
		t.Errorf("parent label = %q, want a.js", got)
	}
	if got := child.Value(labelsKey{}).(map[string]string)["module"]; got != "b.js" {
		t.Errorf("child label = %q, want b.js", got)
	}
}
