// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/cleveryg/lens/internal/buildenv"
	"github.com/cleveryg/lens/internal/pipeline"
	"github.com/spf13/cobra"
)

// buildParams are the flags of the build command.
type buildParams struct {
	stdout     io.Writer
	config     string
	mode       string // empty keeps the configured mode
	out        string // empty keeps the configured directory
	sourceMaps *bool  // nil keeps the configured setting
	clearCache bool
}

func newBuildCommand() *cobra.Command {
	p := buildParams{}
	var sourceMaps bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Transform, bundle and emit the renderer",
		Example: `  # Development build from ./lens.yaml
  rendererbuild build

  # Production build into a release directory
  rendererbuild build --mode production --out release/renderer`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p.stdout = cmd.OutOrStdout()
			if cmd.Flags().Changed("sourcemaps") {
				p.sourceMaps = &sourceMaps
			}
			return runBuild(cmd.Context(), p)
		},
	}
	cmd.Flags().StringVar(&p.config, "config", "lens.yaml", "build configuration file or gs:// URL")
	cmd.Flags().StringVar(&p.mode, "mode", "", "build mode (development or production), overriding the configuration")
	cmd.Flags().StringVar(&p.out, "out", "", "output directory, overriding the configuration")
	cmd.Flags().BoolVar(&p.clearCache, "clear-cache", false, "drop cached transform results before building")
	cmd.Flags().BoolVar(&sourceMaps, "sourcemaps", true, "emit source maps, overriding the configuration")
	return cmd
}

func runBuild(ctx context.Context, p buildParams) error {
	env, err := buildenv.Read(ctx, p.config)
	if err != nil {
		return err
	}
	if p.mode != "" {
		if env.Mode, err = buildenv.ParseMode(p.mode); err != nil {
			return err
		}
	}
	if p.out != "" {
		if env.OutputDir, err = filepath.Abs(p.out); err != nil {
			return err
		}
	}
	if p.sourceMaps != nil {
		env.SourceMaps = *p.sourceMaps
	}

	pl, err := pipeline.New(ctx, env)
	if err != nil {
		return err
	}
	defer pl.Close()
	if p.clearCache {
		if err := pl.ClearCache(ctx); err != nil {
			return err
		}
	}
	res, err := pl.Build(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(p.stdout, "built %d modules into %s\n", len(res.Graph.Modules), env.OutputDir)
	return nil
}
