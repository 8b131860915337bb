// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package log supports structured and unstructured logging with levels.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	charmlog "github.com/charmbracelet/log"
)

// Severity is the severity of a log entry.
type Severity int

const (
	SeverityDefault Severity = iota
	SeverityDebug
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "Debug"
	case SeverityInfo:
		return "Info"
	case SeverityWarning:
		return "Warning"
	case SeverityError:
		return "Error"
	case SeverityCritical:
		return "Critical"
	default:
		return "Default"
	}
}

// Logger is the interface implemented by log backends.
type Logger interface {
	Log(ctx context.Context, s Severity, payload any)
	Flush()
}

var (
	mu     sync.Mutex
	logger Logger = newCharmLogger(os.Stderr)

	// currentLevel holds current log level.
	// No logs will be printed below currentLevel.
	currentLevel = SeverityDefault
)

type (
	// labelsKey is the type of the context key for labels.
	labelsKey struct{}
)

// NewContextWithLabel creates a new context from ctx that adds a label that will
// appear in the log entry.
func NewContextWithLabel(ctx context.Context, key, value string) context.Context {
	oldLabels, _ := ctx.Value(labelsKey{}).(map[string]string)
	// Copy the labels, to preserve immutability of contexts.
	newLabels := map[string]string{}
	for k, v := range oldLabels {
		newLabels[k] = v
	}
	newLabels[key] = value
	return context.WithValue(ctx, labelsKey{}, newLabels)
}

// charmLogger writes human-readable entries to a terminal or file.
type charmLogger struct {
	l *charmlog.Logger
}

func newCharmLogger(w io.Writer) *charmLogger {
	return &charmLogger{l: charmlog.NewWithOptions(w, charmlog.Options{
		Level:  charmlog.DebugLevel, // filtering happens in doLog
		Prefix: "lens",
	})}
}

func (c *charmLogger) Log(ctx context.Context, s Severity, payload any) {
	// Convert errors to strings so that wrapped chains print in full.
	if err, ok := payload.(error); ok {
		payload = err.Error()
	}
	var keyvals []any
	labels, _ := ctx.Value(labelsKey{}).(map[string]string)
	for _, k := range sortedKeys(labels) {
		keyvals = append(keyvals, k, labels[k])
	}
	c.l.Log(charmLevel(s), payload, keyvals...)
}

func (c *charmLogger) Flush() {}

func charmLevel(s Severity) charmlog.Level {
	switch s {
	case SeverityDebug:
		return charmlog.DebugLevel
	case SeverityWarning:
		return charmlog.WarnLevel
	case SeverityError, SeverityCritical:
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetOutput redirects the default logger. It is used by commands that want
// quiet or machine-readable output.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = newCharmLogger(w)
}

// Use sets the logger to l.
func Use(l Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// Infof logs a formatted string at the Info level.
func Infof(ctx context.Context, format string, args ...any) {
	logf(ctx, SeverityInfo, format, args)
}

// Warningf logs a formatted string at the Warning level.
func Warningf(ctx context.Context, format string, args ...any) {
	logf(ctx, SeverityWarning, format, args)
}

// Errorf logs a formatted string at the Error level.
func Errorf(ctx context.Context, format string, args ...any) {
	logf(ctx, SeverityError, format, args)
}

// Debugf logs a formatted string at the Debug level.
func Debugf(ctx context.Context, format string, args ...any) {
	logf(ctx, SeverityDebug, format, args)
}

// Fatalf is equivalent to Errorf followed by exiting the program.
func Fatalf(ctx context.Context, format string, args ...any) {
	Errorf(ctx, format, args...)
	die()
}

func logf(ctx context.Context, s Severity, format string, args []any) {
	doLog(ctx, s, fmt.Sprintf(format, args...))
}

// Info logs arg, which can be a string or a struct, at the Info level.
func Info(ctx context.Context, arg any) { doLog(ctx, SeverityInfo, arg) }

// Warning logs arg, which can be a string or a struct, at the Warning level.
func Warning(ctx context.Context, arg any) { doLog(ctx, SeverityWarning, arg) }

// Error logs arg, which can be a string or a struct, at the Error level.
func Error(ctx context.Context, arg any) { doLog(ctx, SeverityError, arg) }

// Debug logs arg, which can be a string or a struct, at the Debug level.
func Debug(ctx context.Context, arg any) { doLog(ctx, SeverityDebug, arg) }

// Fatal is equivalent to Error followed by exiting the program.
func Fatal(ctx context.Context, arg any) {
	Error(ctx, arg)
	die()
}

// SetLevel sets the minimum severity level to log.
// Valid values are "debug", "info", "warning", "error" and "fatal".
// An unknown or empty value logs everything.
func SetLevel(v string) {
	level := toLevel(v)
	mu.Lock()
	defer mu.Unlock()
	currentLevel = level
}

func getLevel() Severity {
	mu.Lock()
	defer mu.Unlock()
	return currentLevel
}

func doLog(ctx context.Context, s Severity, payload any) {
	if getLevel() > s {
		return
	}
	mu.Lock()
	l := logger
	mu.Unlock()
	l.Log(ctx, s, payload)
}

func toLevel(v string) Severity {
	v = strings.ToLower(v)

	switch v {
	case "":
		// default log level will print everything.
		return SeverityDefault
	case "debug":
		return SeverityDebug
	case "info":
		return SeverityInfo
	case "warning":
		return SeverityWarning
	case "error":
		return SeverityError
	case "fatal":
		return SeverityCritical
	}

	// Default log level in case of invalid input.
	Errorf(context.Background(), "%q is not a valid log level", v)
	return SeverityDefault
}

func die() {
	mu.Lock()
	logger.Flush()
	mu.Unlock()
	os.Exit(1)
}
