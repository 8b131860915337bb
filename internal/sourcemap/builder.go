// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sourcemap

import "strings"

// A Builder concatenates the maps of several generated fragments into the
// map of a single output file.
type Builder struct {
	sources  []string
	contents []*string
	srcIndex map[string]int
	names    []string
	nameIdx  map[string]int
	lines    [][]Segment
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{srcIndex: map[string]int{}, nameIdx: map[string]int{}}
}

// Skip records n generated lines that have no mappings.
func (b *Builder) Skip(n int) {
	for i := 0; i < n; i++ {
		b.lines = append(b.lines, nil)
	}
}

// Append adds the mappings of m for a fragment of n generated lines. If m
// is nil the lines are recorded without mappings. Lines of m beyond n are
// dropped so that the builder stays aligned with the output.
func (b *Builder) Append(m *Map, n int) error {
	if m == nil {
		b.Skip(n)
		return nil
	}
	lines, err := m.Lines()
	if err != nil {
		return err
	}
	srcs := make([]int, len(m.Sources))
	for i, s := range m.Sources {
		var content *string
		if i < len(m.SourcesContent) {
			content = m.SourcesContent[i]
		}
		srcs[i] = b.addSource(s, content)
	}
	names := make([]int, len(m.Names))
	for i, name := range m.Names {
		names[i] = b.addName(name)
	}
	for i := 0; i < n; i++ {
		if i >= len(lines) {
			b.lines = append(b.lines, nil)
			continue
		}
		segs := make([]Segment, 0, len(lines[i]))
		for _, s := range lines[i] {
			if s.Source >= len(srcs) || s.Name >= len(names) {
				continue
			}
			if s.Source >= 0 {
				s.Source = srcs[s.Source]
			}
			if s.Name >= 0 {
				s.Name = names[s.Name]
			}
			segs = append(segs, s)
		}
		b.lines = append(b.lines, segs)
	}
	return nil
}

func (b *Builder) addSource(s string, content *string) int {
	if i, ok := b.srcIndex[s]; ok {
		if b.contents[i] == nil {
			b.contents[i] = content
		}
		return i
	}
	b.srcIndex[s] = len(b.sources)
	b.sources = append(b.sources, s)
	b.contents = append(b.contents, content)
	return len(b.sources) - 1
}

func (b *Builder) addName(name string) int {
	if i, ok := b.nameIdx[name]; ok {
		return i
	}
	b.nameIdx[name] = len(b.names)
	b.names = append(b.names, name)
	return len(b.names) - 1
}

// Map returns the combined map for file.
func (b *Builder) Map(file string) *Map {
	m := &Map{
		Version:  3,
		File:     file,
		Sources:  append([]string{}, b.sources...),
		Names:    append([]string{}, b.names...),
		Mappings: Encode(b.lines),
	}
	for _, c := range b.contents {
		if c != nil {
			m.SourcesContent = append([]*string{}, b.contents...)
			break
		}
	}
	return m
}

// Lines returns the number of generated lines recorded so far.
func (b *Builder) Lines() int { return len(b.lines) }

// CountLines returns the number of lines in s, counting a final line
// without a newline.
func CountLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
