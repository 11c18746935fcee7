// SPDX-License-Identifier: MPL-2.0

// Package bootc hands a built image to the host through `bootc upgrade`.
package bootc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/trellis-build/trls/internal/container"
	"github.com/trellis-build/trls/internal/issue"
)

// Binary is the bootc executable name.
const Binary = "bootc"

// ErrNotAvailable is returned when bootc is missing or does not answer.
var ErrNotAvailable = errors.New("bootc not available")

type (
	// Upgrader runs bootc.
	Upgrader struct {
		binary      string
		execCommand container.ExecCommandFunc
		stdout      io.Writer
		stderr      io.Writer
		dryRun      io.Writer
	}

	// Option configures an Upgrader.
	Option func(*Upgrader)
)

// WithExecCommand sets a custom exec command function for testing.
func WithExecCommand(fn container.ExecCommandFunc) Option {
	return func(u *Upgrader) { u.execCommand = fn }
}

// WithOutput sets where upgrade output goes. Defaults to os.Stdout and os.Stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(u *Upgrader) {
		u.stdout = stdout
		u.stderr = stderr
	}
}

// WithDryRun prints the upgrade command to out instead of running it.
func WithDryRun(out io.Writer) Option {
	return func(u *Upgrader) { u.dryRun = out }
}

// New creates an Upgrader using bootc from PATH.
func New(opts ...Option) *Upgrader {
	binary, err := exec.LookPath(Binary)
	if err != nil {
		binary = Binary
	}
	u := &Upgrader{
		binary:      binary,
		execCommand: exec.CommandContext,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Available runs `bootc --version` and returns its output.
func (u *Upgrader) Available(ctx context.Context) (string, error) {
	cmd := u.execCommand(ctx, u.binary, "--version")
	var out bytes.Buffer
	cmd.Stdout = &out

	if err := cmd.Run(); err != nil {
		reason := "bootc is not installed"
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			reason = "bootc is installed but not responding correctly"
		}
		return "", issue.NewErrorContext().
			WithOperation("run bootc").
			WithResource(u.binary).
			WithSuggestion("Install bootc to use the update command").
			WithIssue(issue.BootcNotFoundId).
			Wrap(fmt.Errorf("%w: %s: %w", ErrNotAvailable, reason, err)).
			BuildError()
	}

	version := strings.TrimSpace(out.String())
	slog.Debug("bootc available", "version", version)
	return version, nil
}

// Upgrade runs `bootc upgrade`, streaming its output.
func (u *Upgrader) Upgrade(ctx context.Context) error {
	if u.dryRun != nil {
		line, err := container.CommandLine(nil, Binary, []string{"upgrade"})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(u.dryRun, line)
		return err
	}

	cmd := u.execCommand(ctx, u.binary, "upgrade")
	cmd.Stdout = u.stdout
	var stderr bytes.Buffer
	cmd.Stderr = io.MultiWriter(u.stderr, &stderr)

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return issue.NewErrorContext().
			WithOperation("upgrade the host with bootc").
			WithSuggestions(
				"Check that the host was installed with bootc",
				"Run 'bootc status' to inspect the deployment",
			).
			Wrap(err).
			BuildError()
	}
	return nil
}
