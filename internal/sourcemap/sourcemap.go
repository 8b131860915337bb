// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sourcemap reads, writes and concatenates version 3 source maps.
//
// Only the parts of the format the pipeline produces are supported: flat
// maps (no index "sections") whose mappings are decoded into absolute
// segments, shifted, and re-encoded.
package sourcemap

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Map is a version 3 source map.
type Map struct {
	Version        int       `json:"version"`
	File           string    `json:"file,omitempty"`
	SourceRoot     string    `json:"sourceRoot,omitempty"`
	Sources        []string  `json:"sources"`
	SourcesContent []*string `json:"sourcesContent,omitempty"`
	Names          []string  `json:"names"`
	Mappings       string    `json:"mappings"`
}

// A Segment maps a generated column to an original position. Source and
// Name are -1 when absent.
type Segment struct {
	GenCol   int
	Source   int
	OrigLine int
	OrigCol  int
	Name     int
}

// Parse decodes a JSON source map.
func Parse(data []byte) (*Map, error) {
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("sourcemap.Parse: %v", err)
	}
	if m.Version != 3 {
		return nil, fmt.Errorf("sourcemap.Parse: unsupported version %d", m.Version)
	}
	return &m, nil
}

// Marshal encodes m as JSON.
func (m *Map) Marshal() ([]byte, error) {
	if m.Sources == nil {
		m.Sources = []string{}
	}
	if m.Names == nil {
		m.Names = []string{}
	}
	return json.Marshal(m)
}

// Lines decodes the mappings of m into absolute segments, one slice per
// generated line.
func (m *Map) Lines() ([][]Segment, error) {
	var (
		lines                              [][]Segment
		src, origLine, origCol, name, line int
	)
	for _, l := range strings.Split(m.Mappings, ";") {
		var segs []Segment
		genCol := 0
		for _, field := range strings.Split(l, ",") {
			if field == "" {
				continue
			}
			vals, err := decodeVLQ(field)
			if err != nil {
				return nil, fmt.Errorf("line %d: %v", line, err)
			}
			seg := Segment{Source: -1, Name: -1}
			switch len(vals) {
			case 1, 4, 5:
			default:
				return nil, fmt.Errorf("line %d: segment with %d fields", line, len(vals))
			}
			genCol += vals[0]
			seg.GenCol = genCol
			if len(vals) >= 4 {
				src += vals[1]
				origLine += vals[2]
				origCol += vals[3]
				seg.Source, seg.OrigLine, seg.OrigCol = src, origLine, origCol
			}
			if len(vals) == 5 {
				name += vals[4]
				seg.Name = name
			}
			segs = append(segs, seg)
		}
		lines = append(lines, segs)
		line++
	}
	return lines, nil
}

// Encode encodes absolute segments into a mappings string.
func Encode(lines [][]Segment) string {
	var (
		b                            strings.Builder
		src, origLine, origCol, name int
	)
	for i, segs := range lines {
		if i > 0 {
			b.WriteByte(';')
		}
		genCol := 0
		for j, s := range segs {
			if j > 0 {
				b.WriteByte(',')
			}
			encodeVLQ(&b, s.GenCol-genCol)
			genCol = s.GenCol
			if s.Source < 0 {
				continue
			}
			encodeVLQ(&b, s.Source-src)
			encodeVLQ(&b, s.OrigLine-origLine)
			encodeVLQ(&b, s.OrigCol-origCol)
			src, origLine, origCol = s.Source, s.OrigLine, s.OrigCol
			if s.Name >= 0 {
				encodeVLQ(&b, s.Name-name)
				name = s.Name
			}
		}
	}
	return b.String()
}

const base64Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

var base64Values = func() [256]int {
	var v [256]int
	for i := range v {
		v[i] = -1
	}
	for i := 0; i < len(base64Chars); i++ {
		v[base64Chars[i]] = i
	}
	return v
}()

func decodeVLQ(s string) ([]int, error) {
	var (
		vals         []int
		value, shift int
	)
	for i := 0; i < len(s); i++ {
		d := base64Values[s[i]]
		if d < 0 {
			return nil, fmt.Errorf("invalid base64 character %q", s[i])
		}
		value += (d & 31) << shift
		if d&32 != 0 {
			shift += 5
			continue
		}
		if value&1 != 0 {
			vals = append(vals, -(value >> 1))
		} else {
			vals = append(vals, value>>1)
		}
		value, shift = 0, 0
	}
	if shift != 0 {
		return nil, errors.New("truncated VLQ value")
	}
	return vals, nil
}

func encodeVLQ(b *strings.Builder, v int) {
	if v < 0 {
		v = (-v << 1) | 1
	} else {
		v <<= 1
	}
	for {
		d := v & 31
		v >>= 5
		if v > 0 {
			d |= 32
		}
		b.WriteByte(base64Chars[d])
		if v == 0 {
			return
		}
	}
}

const dataURLPrefix = "data:application/json;base64,"

// InlineComment returns a sourceMappingURL comment embedding data. The
// comment uses CSS syntax when css is true.
func InlineComment(data []byte, css bool) string {
	return URLComment(dataURLPrefix+base64.StdEncoding.EncodeToString(data), css)
}

// URLComment returns a sourceMappingURL comment pointing at url.
func URLComment(url string, css bool) string {
	if css {
		return "/*# sourceMappingURL=" + url + " */\n"
	}
	return "//# sourceMappingURL=" + url + "\n"
}

var commentMarkers = [][]byte{[]byte("//# sourceMappingURL="), []byte("/*# sourceMappingURL=")}

// ExtractInline removes a trailing inline sourceMappingURL comment from
// content, returning the content without it and the decoded map. ok is
// false when content carries no inline map.
func ExtractInline(content []byte) (body, data []byte, ok bool) {
	for _, marker := range commentMarkers {
		i := bytes.LastIndex(content, marker)
		if i < 0 {
			continue
		}
		url := content[i+len(marker):]
		if end := bytes.IndexAny(url, " \r\n*"); end >= 0 {
			url = url[:end]
		}
		if !bytes.HasPrefix(url, []byte(dataURLPrefix)) {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(string(url[len(dataURLPrefix):]))
		if err != nil {
			continue
		}
		return bytes.TrimRight(content[:i], "\n"), decoded, true
	}
	return content, nil, false
}
