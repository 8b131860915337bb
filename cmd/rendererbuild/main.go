// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command rendererbuild builds the renderer of an Electron application.
//
// Usage:
//
//	rendererbuild build [--config lens.yaml] [--mode production] [--out dist]
//	rendererbuild dll --name vendor_lib --out vendor react react-dom
//
// The build configuration is a YAML file, or a gs://bucket/object URL.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cleveryg/lens/internal/dcensus"
	"github.com/cleveryg/lens/internal/derrors"
	"github.com/cleveryg/lens/internal/log"
	"github.com/spf13/cobra"
)

func main() {
	ctx := context.Background()
	if err := dcensus.Init(); err != nil {
		log.Fatal(ctx, err)
	}
	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		reportError(cmd.ErrOrStderr(), err)
		os.Exit(exitCode(err))
	}
}

// newRootCommand returns the rendererbuild command with its subcommands.
func newRootCommand() *cobra.Command {
	var (
		logLevel string
		metrics  bool
	)
	root := &cobra.Command{
		Use:           "rendererbuild",
		Short:         "Build the renderer of an Electron application",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetOutput(cmd.ErrOrStderr())
			log.SetLevel(logLevel)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if metrics {
				return dcensus.Dump(cmd.OutOrStdout())
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "minimum severity to log (debug, info, warning, error)")
	root.PersistentFlags().BoolVar(&metrics, "metrics", false, "print build metrics when done")
	root.AddCommand(newBuildCommand(), newDLLCommand())
	return root
}

// reportError prints err to w. A list of module errors is printed one
// per line, sorted.
func reportError(w io.Writer, err error) {
	var list derrors.List
	if errors.As(err, &list) {
		fmt.Fprintln(w, list.Error())
		fmt.Fprintf(w, "%d errors\n", len(list))
		return
	}
	fmt.Fprintln(w, err)
}

func exitCode(err error) int {
	if code := derrors.ToExitCode(err); code != 0 {
		return code
	}
	return 1
}
