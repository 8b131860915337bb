// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dll links vendor references against a precompiled vendor library
// and builds such libraries.
//
// A vendor library (a "DLL") is a script that exposes a lookup function
// under a library name. Its manifest lists the identifiers the library
// provides and how the renderer reaches the library at run time.
package dll

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/cleveryg/lens/internal/buildenv"
	"github.com/cleveryg/lens/internal/derrors"
)

// Loader strategies: how the library object is reached at run time.
const (
	StrategyVar       = "var"
	StrategyWindow    = "window"
	StrategyGlobal    = "global"
	StrategyThis      = "this"
	StrategyCommonJS  = "commonjs"
	StrategyCommonJS2 = "commonjs2"
)

var strategies = map[string]bool{
	StrategyVar: true, StrategyWindow: true, StrategyGlobal: true,
	StrategyThis: true, StrategyCommonJS: true, StrategyCommonJS2: true,
}

// A Manifest describes a vendor library.
type Manifest struct {
	Name    string           `json:"name"`
	Type    string           `json:"type,omitempty"`
	Content map[string]Entry `json:"content"`
}

// An Entry is one module provided by the library.
type Entry struct {
	// ID is the key the library's lookup function is called with.
	ID EntryID `json:"id"`
}

// EntryID is a module key. Manifests may spell it as a number or a string.
type EntryID string

func (id *EntryID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = EntryID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("manifest entry id %s: %v", data, err)
	}
	*id = EntryID(n.String())
	return nil
}

// MarshalJSON writes numeric IDs as numbers.
func (id EntryID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Parse decodes a manifest.
func Parse(data []byte) (_ *Manifest, err error) {
	defer derrors.Wrap(&err, "dll.Parse")

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", derrors.InvalidArgument, err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("%w: manifest has no library name", derrors.InvalidArgument)
	}
	if m.Type == "" {
		m.Type = StrategyVar
	}
	if !strategies[m.Type] {
		return nil, fmt.Errorf("%w: unknown loader strategy %q", derrors.InvalidArgument, m.Type)
	}
	if m.Content == nil {
		m.Content = map[string]Entry{}
	}
	return &m, nil
}

// Load reads the manifest at location, a file path or a gs:// URL.
func Load(ctx context.Context, location string) (_ *Manifest, err error) {
	defer derrors.Wrap(&err, "dll.Load(%q)", location)

	data, err := buildenv.ReadLocation(ctx, location)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Marshal encodes m with sorted keys and indentation.
func (m *Manifest) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Identifiers returns the identifiers m provides, sorted.
func (m *Manifest) Identifiers() []string {
	ids := make([]string, 0, len(m.Content))
	for id := range m.Content {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
