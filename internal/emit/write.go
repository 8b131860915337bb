// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package emit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cleveryg/lens/internal/dcensus"
	"github.com/cleveryg/lens/internal/derrors"
	"github.com/cleveryg/lens/internal/log"
)

// Write writes arts under dir. Every artifact is first written to a
// temporary file next to its destination; only when all of them have been
// written are they renamed into place. On failure the temporary files are
// removed and no existing file is replaced.
func Write(ctx context.Context, dir string, arts []Artifact) (err error) {
	defer derrors.Wrap(&err, "emit.Write(%q)", dir)

	type staged struct {
		tmp, dst string
	}
	var files []staged
	defer func() {
		if err != nil {
			for _, f := range files {
				os.Remove(f.tmp)
			}
		}
	}()
	for _, a := range arts {
		dst := filepath.Join(dir, filepath.FromSlash(a.Path))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		f, err := os.CreateTemp(filepath.Dir(dst), ".lens-*")
		if err != nil {
			return err
		}
		files = append(files, staged{f.Name(), dst})
		_, err = f.Write(a.Content)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("writing %s: %w", a.Path, err)
		}
		if err := os.Chmod(f.Name(), 0o644); err != nil {
			return err
		}
	}
	for i, f := range files {
		if err := os.Rename(f.tmp, f.dst); err != nil {
			// Files already renamed stay in place; the rest are removed.
			files = files[i:]
			return err
		}
	}
	for _, a := range arts {
		dcensus.RecordArtifact(ctx, a.Kind.String(), len(a.Content))
	}
	log.Infof(ctx, "wrote %d files to %s", len(arts), dir)
	return nil
}
