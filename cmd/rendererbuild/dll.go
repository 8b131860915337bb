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
	"github.com/cleveryg/lens/internal/dll"
	"github.com/cleveryg/lens/internal/emit"
	"github.com/spf13/cobra"
)

type dllParams struct {
	stdout    io.Writer
	name      string
	out       string
	dir       string
	mode      string
	externals []string
	modules   []string
}

func newDLLCommand() *cobra.Command {
	p := dllParams{}
	cmd := &cobra.Command{
		Use:   "dll [flags] module...",
		Short: "Precompile vendor modules into a library and its manifest",
		Long: `Precompile vendor modules into a library and its manifest.

The library is written to <out>/<name>.js and the manifest to
<out>/<name>.json. Point the build configuration's manifest at the
latter; the build copies the library next to the renderer.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p.stdout = cmd.OutOrStdout()
			p.modules = args
			return runDLL(cmd.Context(), p)
		},
	}
	cmd.Flags().StringVar(&p.name, "name", "vendor_lib", "global name of the library")
	cmd.Flags().StringVar(&p.out, "out", "vendor", "output directory")
	cmd.Flags().StringVar(&p.dir, "dir", ".", "directory holding node_modules")
	cmd.Flags().StringVar(&p.mode, "mode", "production", "build mode (development or production)")
	cmd.Flags().StringSliceVar(&p.externals, "external", buildenv.DefaultExternals, "modules left to the renderer's native require")
	return cmd
}

func runDLL(ctx context.Context, p dllParams) error {
	mode, err := buildenv.ParseMode(p.mode)
	if err != nil {
		return err
	}
	dir, err := filepath.Abs(p.dir)
	if err != nil {
		return err
	}
	out, err := dll.Build(ctx, dll.BuildOptions{
		Name:       p.name,
		Modules:    p.modules,
		ResolveDir: dir,
		Mode:       mode,
		Externals:  p.externals,
	})
	if err != nil {
		return err
	}
	manifest, err := out.Manifest.Marshal()
	if err != nil {
		return err
	}
	arts := []emit.Artifact{
		{Kind: emit.Script, Path: p.name + ".js", Content: out.Script},
		{Kind: emit.Asset, Path: p.name + ".json", Content: manifest},
	}
	if err := emit.Write(ctx, p.out, arts); err != nil {
		return err
	}
	fmt.Fprintf(p.stdout, "wrote %d modules to %s\n", len(out.Manifest.Content), filepath.Join(p.out, p.name+".js"))
	return nil
}
