// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package buildenv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/cleveryg/lens/internal/derrors"
	"github.com/cleveryg/lens/internal/log"
	"gopkg.in/yaml.v3"
)

// file is the YAML form of an Env. Relative paths are resolved against the
// directory holding the configuration file; entry and alias paths against
// the source root.
type file struct {
	Mode        Mode              `yaml:"mode"`
	SourceRoot  string            `yaml:"sourceRoot"`
	OutputDir   string            `yaml:"outputDir"`
	Template    string            `yaml:"template"`
	SharedStyle string            `yaml:"sharedStyle"`
	Manifest    string            `yaml:"manifest"`
	SourceMaps  *bool             `yaml:"sourceMaps"`
	Entries     []fileEntry       `yaml:"entries"`
	Aliases     map[string]string `yaml:"aliases"`
	Externals   []string          `yaml:"externals"`
	Concurrency int               `yaml:"concurrency"`
	Banner      string            `yaml:"banner"`
	Cache       string            `yaml:"cache"`
	Title       string            `yaml:"title"`
	Sass        string            `yaml:"sass"`
}

type fileEntry struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Read reads the build configuration from the given location.
// Location may be of the form gs://bucket/object, denoting a GCS bucket.
// Otherwise it is interpreted as a filename.
func Read(ctx context.Context, location string) (_ Env, err error) {
	defer derrors.Wrap(&err, "buildenv.Read(%q)", location)

	log.Debugf(ctx, "reading build config from %s", location)
	data, err := ReadLocation(ctx, location)
	if err != nil {
		return Env{}, err
	}
	base, err := os.Getwd()
	if err != nil {
		return Env{}, err
	}
	if !strings.HasPrefix(location, "gs://") {
		base = filepath.Dir(location)
	}
	return Parse(data, base)
}

// ReadLocation returns the contents of a file or of a gs://bucket/object.
func ReadLocation(ctx context.Context, location string) (_ []byte, err error) {
	var r io.ReadCloser
	if strings.HasPrefix(location, "gs://") {
		bucket, object, found := strings.Cut(location[5:], "/")
		if !found {
			return nil, errors.New("bad GCS URL")
		}
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, err
		}
		defer client.Close()
		r, err = client.Bucket(bucket).Object(object).NewReader(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		r, err = os.Open(location)
		if err != nil {
			return nil, err
		}
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Parse parses yamlData as a YAML description of an Env. Relative paths are
// resolved against base.
func Parse(yamlData []byte, base string) (_ Env, err error) {
	defer derrors.Wrap(&err, "buildenv.Parse(data, %q)", base)

	var f file
	if err := yaml.Unmarshal(yamlData, &f); err != nil {
		return Env{}, fmt.Errorf("%w: %v", derrors.InvalidArgument, err)
	}
	abs := func(dir, p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, filepath.FromSlash(p))
	}
	env := Env{
		Mode:            f.Mode,
		SourceRoot:      abs(base, f.SourceRoot),
		OutputDir:       abs(base, f.OutputDir),
		TemplatePath:    abs(base, f.Template),
		SharedStylePath: abs(base, f.SharedStyle),
		ManifestPath:    f.Manifest,
		SourceMaps:      true,
		Externals:       f.Externals,
		Concurrency:     f.Concurrency,
		Banner:          f.Banner,
		CacheAddr:       f.Cache,
		Title:           f.Title,
		SassPath:        f.Sass,
	}
	if !strings.HasPrefix(f.Manifest, "gs://") {
		env.ManifestPath = abs(base, f.Manifest)
	}
	if f.SourceMaps != nil {
		env.SourceMaps = *f.SourceMaps
	}
	for _, e := range f.Entries {
		env.Entries = append(env.Entries, Entry{Name: e.Name, Path: abs(env.SourceRoot, e.Path)})
	}
	if len(f.Aliases) > 0 {
		env.Aliases = map[string]string{}
		for prefix, dir := range f.Aliases {
			env.Aliases[prefix] = abs(env.SourceRoot, dir)
		}
	}
	return env.Validate()
}
