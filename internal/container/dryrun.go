// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// DryRunEngine prints the command line of every mutating operation to out
// instead of executing it. Queries are forwarded to the wrapped engine so
// that decisions depending on local state stay accurate.
type DryRunEngine struct {
	wrapped Engine
	base    *BaseCLIEngine
	out     io.Writer
}

// NewDryRunEngine wraps engine. Command lines are rendered with the wrapped
// engine's argument builders when it embeds BaseCLIEngine.
func NewDryRunEngine(engine Engine, out io.Writer) *DryRunEngine {
	base := NewBaseCLIEngine(engine.Name())
	if p, ok := engine.(BaseCLIProvider); ok {
		base = p.BaseCLI()
	}
	return &DryRunEngine{wrapped: engine, base: base, out: out}
}

// Name returns the wrapped engine name.
func (e *DryRunEngine) Name() string { return e.wrapped.Name() }

// Available reports whether the wrapped engine is available.
func (e *DryRunEngine) Available() bool { return e.wrapped.Available() }

// Version returns the wrapped engine version.
func (e *DryRunEngine) Version(ctx context.Context) (string, error) {
	return e.wrapped.Version(ctx)
}

// Build prints the build command.
func (e *DryRunEngine) Build(_ context.Context, opts BuildOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	return e.print(opts.Env, e.base.BuildArgs(opts))
}

// Run prints the run command and reports success.
func (e *DryRunEngine) Run(_ context.Context, opts RunOptions) (*RunResult, error) {
	if err := e.print(nil, e.base.RunArgs(opts)); err != nil {
		return nil, err
	}
	return &RunResult{}, nil
}

// ImageExists queries the wrapped engine.
func (e *DryRunEngine) ImageExists(ctx context.Context, image string) (bool, error) {
	return e.wrapped.ImageExists(ctx, image)
}

// ListImages queries the wrapped engine.
func (e *DryRunEngine) ListImages(ctx context.Context) ([]string, error) {
	return e.wrapped.ListImages(ctx)
}

// RemoveImages prints the remove command.
func (e *DryRunEngine) RemoveImages(_ context.Context, images []string, force bool) error {
	if len(images) == 0 {
		return nil
	}
	return e.print(nil, e.base.RemoveImagesArgs(images, force))
}

// PruneImages prints the prune command.
func (e *DryRunEngine) PruneImages(context.Context) error {
	return e.print(nil, e.base.PruneImagesArgs())
}

func (e *DryRunEngine) print(env map[string]string, args []string) error {
	line, err := CommandLine(env, e.wrapped.Name(), args)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(e.out, line)
	return err
}

// CommandLine renders a command as a bash-quoted line, with env assignments
// in sorted order before the program name.
func CommandLine(env map[string]string, name string, args []string) (string, error) {
	quoted := make([]string, 0, len(env)+1+len(args))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		v, err := quote(env[k])
		if err != nil {
			return "", err
		}
		quoted = append(quoted, k+"="+v)
	}
	for _, w := range append([]string{name}, args...) {
		q, err := quote(w)
		if err != nil {
			return "", err
		}
		quoted = append(quoted, q)
	}
	return strings.Join(quoted, " "), nil
}

func quote(word string) (string, error) {
	q, err := syntax.Quote(word, syntax.LangBash)
	if err != nil {
		return "", fmt.Errorf("cannot quote %q: %w", word, err)
	}
	return q, nil
}
