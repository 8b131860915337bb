// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package derrors defines internal error values to categorize the different
// types error semantics we support.
package derrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

//lint:file-ignore ST1012 prefixing error values with Err would stutter

var (
	// NotFound indicates that a requested file or import could not be found.
	NotFound = errors.New("not found")
	// InvalidArgument indicates that the build configuration is invalid in
	// some way.
	InvalidArgument = errors.New("invalid argument")

	// UnresolvedAssetType indicates that no rule matches a discovered path.
	UnresolvedAssetType = errors.New("unresolved asset type")
	// TransformFailed indicates that a stage of a transform chain failed.
	TransformFailed = errors.New("transform failed")
	// MissingVendorMapping indicates that a vendor identifier is absent from
	// the vendor manifest.
	MissingVendorMapping = errors.New("missing vendor mapping")

	// MissingTemplate indicates that the HTML template could not be read at
	// emission time.
	MissingTemplate = errors.New("missing template")
	// InternalConsistency indicates that a later stage could not consume the
	// output of an earlier one (for example, the optimizer failed to parse a
	// chunk).
	InternalConsistency = errors.New("internal consistency error")

	// Unknown indicates that the error has unknown semantics.
	Unknown = errors.New("unknown")
)

var exitCodes = []struct {
	err  error
	code int
}{
	{InvalidArgument, 2},
	{NotFound, 3},
	{UnresolvedAssetType, 3},
	{TransformFailed, 3},
	{MissingVendorMapping, 3},
	{MissingTemplate, 4},
	{InternalConsistency, 5},
}

// ToExitCode returns a process exit code corresponding to err.
// Module-local categories share a code; a nil error maps to 0.
func ToExitCode(err error) int {
	if err == nil {
		return 0
	}
	for _, e := range exitCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return 1
}

// IsModuleLocal reports whether err only concerns a single module, so that
// other modules may still be processed.
func IsModuleLocal(err error) bool {
	return errors.Is(err, UnresolvedAssetType) ||
		errors.Is(err, TransformFailed) ||
		errors.Is(err, MissingVendorMapping) ||
		errors.Is(err, NotFound)
}

// ModuleError decorates an error with the module path and, when known, the
// transform stage and source line it came from.
type ModuleError struct {
	Path  string
	Stage string // empty when the error is not tied to a stage
	Line  int    // 0 when unknown
	Err   error
}

func (e *ModuleError) Error() string {
	var b strings.Builder
	b.WriteString(e.Path)
	if e.Line > 0 {
		fmt.Fprintf(&b, ":%d", e.Line)
	}
	if e.Stage != "" {
		fmt.Fprintf(&b, ": [%s]", e.Stage)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *ModuleError) Unwrap() error { return e.Err }

// List is an aggregate of errors reported together, such as the failures of
// every module in a build.
type List []error

// Error lists one error per line, sorted so that output is stable across
// runs regardless of the order in which workers reported.
func (l List) Error() string {
	msgs := make([]string, len(l))
	for i, err := range l {
		msgs[i] = err.Error()
	}
	sort.Strings(msgs)
	return strings.Join(msgs, "\n")
}

func (l List) Unwrap() []error { return l }

// Err returns l as an error, or nil if l is empty.
func (l List) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}

// Add adds context to the error.
// The result cannot be unwrapped to recover the original error.
// It does nothing when *errp == nil.
//
// Example:
//
//	defer derrors.Add(&err, "copy(%s, %s)", src, dst)
//
// See Wrap for an equivalent function that allows
// the result to be unwrapped.
func Add(errp *error, format string, args ...any) {
	if *errp != nil {
		*errp = fmt.Errorf("%s: %v", fmt.Sprintf(format, args...), *errp)
	}
}

// Wrap adds context to the error and allows
// unwrapping the result to recover the original error.
//
// Example:
//
//	defer derrors.Wrap(&err, "copy(%s, %s)", src, dst)
//
// See Add for an equivalent function that does not allow
// the result to be unwrapped.
func Wrap(errp *error, format string, args ...any) {
	if *errp != nil {
		*errp = fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), *errp)
	}
}
