// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sourcemap

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestVLQ(t *testing.T) {
	for _, v := range []int{0, 1, -1, 15, 16, -16, 31, 32, 1000, -123456} {
		var b strings.Builder
		encodeVLQ(&b, v)
		got, err := decodeVLQ(b.String())
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0] != v {
			t.Errorf("decode(encode(%d)) = %v", v, got)
		}
	}
	if _, err := decodeVLQ("g"); err == nil {
		t.Error("truncated value decoded without error")
	}
}

func TestLinesEncode(t *testing.T) {
	// "AAAA;AACA,IAAI" : line 0 col 0 -> 0:0:0, line 1 col 0 -> 0:1:0, col 4 -> 0:1:4
	m := &Map{Version: 3, Sources: []string{"a.ts"}, Mappings: "AAAA;AACA,IAAI;;"}
	lines, err := m.Lines()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]Segment{
		{{GenCol: 0, Source: 0, OrigLine: 0, OrigCol: 0, Name: -1}},
		{{GenCol: 0, Source: 0, OrigLine: 1, OrigCol: 0, Name: -1}, {GenCol: 4, Source: 0, OrigLine: 1, OrigCol: 4, Name: -1}},
		nil,
		nil,
	}
	if diff := cmp.Diff(want, lines); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if got := Encode(lines); got != m.Mappings {
		t.Errorf("Encode = %q, want %q", got, m.Mappings)
	}
}

func TestBuilder(t *testing.T) {
	a := lineMap("a.ts", "x\ny\n", 0, 2)
	b := lineMap("b.ts", "z\n", 0, 1)

	bld := NewBuilder()
	bld.Skip(1) // wrapper line
	if err := bld.Append(a, 2); err != nil {
		t.Fatal(err)
	}
	bld.Skip(1)
	if err := bld.Append(b, 1); err != nil {
		t.Fatal(err)
	}
	m := bld.Map("out.js")
	if diff := cmp.Diff([]string{"a.ts", "b.ts"}, m.Sources); diff != "" {
		t.Errorf("sources mismatch (-want +got):\n%s", diff)
	}
	lines, err := m.Lines()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5", len(lines))
	}
	if lines[0] != nil || lines[3] != nil {
		t.Errorf("wrapper lines have mappings: %v", lines)
	}
	if got := lines[2][0]; got.Source != 0 || got.OrigLine != 1 {
		t.Errorf("line 2 maps to %+v, want a.ts line 1", got)
	}
	if got := lines[4][0]; got.Source != 1 || got.OrigLine != 0 {
		t.Errorf("line 4 maps to %+v, want b.ts line 0", got)
	}
	if len(m.SourcesContent) != 2 || *m.SourcesContent[1] != "z\n" {
		t.Errorf("sourcesContent = %v", m.SourcesContent)
	}
}

func TestInline(t *testing.T) {
	data := []byte(`{"version":3,"sources":[],"names":[],"mappings":""}`)
	content := []byte("var x = 1;\n" + InlineComment(data, false))
	body, got, ok := ExtractInline(content)
	if !ok {
		t.Fatal("no inline map found")
	}
	if string(body) != "var x = 1;" {
		t.Errorf("body = %q", body)
	}
	if string(got) != string(data) {
		t.Errorf("map = %q", got)
	}

	css := []byte("a{}\n" + InlineComment(data, true))
	if _, got, ok := ExtractInline(css); !ok || string(got) != string(data) {
		t.Errorf("css inline map not extracted: %q %t", got, ok)
	}
	if _, _, ok := ExtractInline([]byte("//# sourceMappingURL=app.js.map\n")); ok {
		t.Error("linked map reported as inline")
	}
}

func TestCountLines(t *testing.T) {
	for s, want := range map[string]int{"": 0, "a": 1, "a\n": 1, "a\nb": 2, "a\n\n": 2} {
		if got := CountLines(s); got != want {
			t.Errorf("CountLines(%q) = %d, want %d", s, got, want)
		}
	}
}

// lineMap returns a map in which each of the first n generated lines maps
// to the start of source line firstLine+i.
func lineMap(source, content string, firstLine, n int) *Map {
	lines := make([][]Segment, n)
	for i := range lines {
		lines[i] = []Segment{{GenCol: 0, Source: 0, OrigLine: firstLine + i, OrigCol: 0, Name: -1}}
	}
	return &Map{
		Version:        3,
		Sources:        []string{source},
		SourcesContent: []*string{&content},
		Names:          []string{},
		Mappings:       Encode(lines),
	}
}
