// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transform

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/cleveryg/lens/internal/buildenv"
	"github.com/cleveryg/lens/internal/derrors"
)

// file copies the module's bytes to the output directory as an asset and
// replaces the module with one that exports the asset's URL.
//
// The name option is a template: [name] is the base name without
// extension, [ext] the extension, and [hash] or [hash:N] the first 20 (or
// N) hex digits of the SHA-256 of the content.
type file struct {
	name     string
	template string
}

const defaultAssetName = "[name].[ext]"

var placeholder = regexp.MustCompile(`\[(name|ext|hash)(?::(\d+))?\]`)

func newFile(spec Spec, env buildenv.Env) (*file, error) {
	tmpl := spec.Options["name"]
	if tmpl == "" {
		tmpl = defaultAssetName
	}
	for _, m := range placeholder.FindAllStringSubmatch(tmpl, -1) {
		if m[2] == "" {
			continue
		}
		if m[1] != "hash" {
			return nil, fmt.Errorf("%w: length on [%s]", derrors.InvalidArgument, m[1])
		}
		if n, _ := strconv.Atoi(m[2]); n < 1 || n > 64 {
			return nil, fmt.Errorf("%w: bad hash length %s", derrors.InvalidArgument, m[2])
		}
	}
	return &file{name: name(spec, "file"), template: tmpl}, nil
}

func (f *file) Name() string { return f.name }

func (f *file) Apply(ctx context.Context, in *Unit) (*Unit, error) {
	out := in.clone()
	asset := assetName(f.template, in.Path, in.Content)
	out.Assets = append(out.Assets, Asset{Name: asset, Data: in.Content})
	url, _ := json.Marshal(asset)
	out.Content = []byte(fmt.Sprintf("module.exports = %s;\n", url))
	out.Map = nil
	out.Generated = true
	return out, nil
}

func assetName(tmpl, p string, data []byte) string {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	base := filepath.Base(p)
	e := ext(p)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	s := placeholder.ReplaceAllStringFunc(tmpl, func(ph string) string {
		m := placeholder.FindStringSubmatch(ph)
		switch m[1] {
		case "name":
			return stem
		case "ext":
			return e
		}
		n := 20
		if m[2] != "" {
			n, _ = strconv.Atoi(m[2])
		}
		return digest[:n]
	})
	return path.Clean(s)
}

// native loads a Node addon. The addon is copied next to the chunk that
// requires it and opened with process.dlopen at run time.
type native struct {
	name string
}

func newNative(spec Spec, env buildenv.Env) (*native, error) {
	return &native{name: name(spec, "native")}, nil
}

func (n *native) Name() string { return n.name }

func (n *native) Apply(ctx context.Context, in *Unit) (*Unit, error) {
	out := in.clone()
	asset := assetName("[name]-[hash:8].[ext]", in.Path, in.Content)
	out.Assets = append(out.Assets, Asset{Name: asset, Data: in.Content})
	file, _ := json.Marshal(asset)
	out.Content = []byte(fmt.Sprintf("process.dlopen(module, require(\"path\").join(__dirname, %s));\n", file))
	out.Map = nil
	out.Generated = true
	return out, nil
}
