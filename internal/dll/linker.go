// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dll

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cleveryg/lens/internal/derrors"
	"github.com/cleveryg/lens/internal/graph"
)

// A VendorHandle is a reference to a module of the vendor library. Chunks
// refer to it by expression; the module's source is never included.
type VendorHandle struct {
	Identifier string  // as required by the module
	Key        EntryID // key passed to the library's lookup function
}

// Expr returns the script expression that evaluates to the vendor
// module's exports.
func (h VendorHandle) Expr() string {
	key, _ := json.Marshal(string(h.Key))
	return fmt.Sprintf("__lens.vendor(%s)", key)
}

// A Resolution is the result of linking one reference. Vendor is set only
// for vendor references.
type Resolution struct {
	Ref    graph.Ref
	Vendor *VendorHandle
}

// A Library describes how the runtime reaches the vendor library.
type Library struct {
	Name     string
	Strategy string
}

// A Linker resolves references against a manifest. It is safe for
// concurrent use.
type Linker struct {
	m *Manifest
}

// NewLinker returns a Linker for m. A nil manifest provides nothing.
func NewLinker(m *Manifest) *Linker {
	return &Linker{m: m}
}

// Library returns the library that vendor handles are looked up in, or
// nil if there is no manifest.
func (l *Linker) Library() *Library {
	if l.m == nil {
		return nil
	}
	return &Library{Name: l.m.Name, Strategy: l.m.Type}
}

// Resolve links ref. Local and external references resolve to themselves.
// A vendor reference resolves to a handle if the manifest provides its
// identifier, and to an error wrapping derrors.MissingVendorMapping
// otherwise.
func (l *Linker) Resolve(ref graph.Ref) (Resolution, error) {
	if ref.Kind != graph.Vendor {
		return Resolution{Ref: ref}, nil
	}
	if l.m != nil {
		// Manifests written by other tools key entries by the path of the
		// module under node_modules.
		for _, key := range []string{ref.ID, "./node_modules/" + ref.ID, "node_modules/" + ref.ID} {
			if e, ok := l.m.Content[key]; ok {
				k := e.ID
				if k == "" {
					k = EntryID(key)
				}
				return Resolution{Ref: ref, Vendor: &VendorHandle{Identifier: ref.ID, Key: k}}, nil
			}
		}
	}
	return Resolution{}, fmt.Errorf("%w: %q is not provided by the vendor library", derrors.MissingVendorMapping, ref.ID)
}

// Link resolves every vendor dependency of every module in g. It returns
// the handles by identifier, and a derrors.List with one
// *derrors.ModuleError per module that requires an unprovided identifier.
func (l *Linker) Link(g *graph.Graph) (map[string]VendorHandle, error) {
	handles := map[string]VendorHandle{}
	var errs derrors.List
	for _, id := range g.IDs() {
		var missing []string
		for _, dep := range g.Modules[id].Dependencies {
			res, err := l.Resolve(dep.Ref)
			if err != nil {
				missing = append(missing, dep.Ref.ID)
				continue
			}
			if res.Vendor != nil {
				handles[dep.Ref.ID] = *res.Vendor
			}
		}
		if len(missing) > 0 {
			errs = append(errs, &derrors.ModuleError{
				Path:  id,
				Stage: "link",
				Err:   fmt.Errorf("%w: %s", derrors.MissingVendorMapping, strings.Join(missing, ", ")),
			})
		}
	}
	return handles, errs.Err()
}
