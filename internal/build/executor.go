// SPDX-License-Identifier: MPL-2.0

// Package build executes build plans against a container engine and removes
// the images they leave behind.
package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/trellis-build/trls/internal/config"
	"github.com/trellis-build/trls/internal/container"
	"github.com/trellis-build/trls/internal/discovery"
	"github.com/trellis-build/trls/internal/plan"
	"github.com/trellis-build/trls/pkg/types"
)

const (
	// BaseImageArg receives the previous step's image.
	BaseImageArg = "BASE_IMAGE"
	// HooksDirArg receives the hooks directory path of rootfs builds.
	HooksDirArg = "HOOKS_DIR"
	// BuildahLayersEnv disables intermediate layer caching when "false".
	BuildahLayersEnv = "BUILDAH_LAYERS"

	// PacmanCacheMount is where the pacman cache appears inside rootfs builds.
	PacmanCacheMount = "/var/cache/pacman/pkg"
	// AURCacheMount is where the AUR cache appears inside rootfs builds.
	AURCacheMount = "/var/cache/trellis/aur"

	// stderrTailLines bounds the captured output quoted in a quiet-mode failure.
	stderrTailLines = 20
)

// ErrBuildFailure is the sentinel error wrapped by BuildFailureError.
var ErrBuildFailure = errors.New("build failure")

// buildCapabilities are granted to every build.
var buildCapabilities = []string{"sys_admin", "mknod"}

type (
	// BuildFailureError is returned when the engine exits non-zero for a step.
	BuildFailureError struct {
		Tag      string
		ExitCode types.ExitCode
		// Output is the tail of the engine's stderr, captured in quiet mode.
		Output string
		// Err is the engine error, usually an actionable error.
		Err error
	}

	// StepExecutor runs a single plan step.
	StepExecutor interface {
		Execute(ctx context.Context, step plan.Step) error
	}

	// Executor turns plan steps into engine builds.
	Executor struct {
		engine container.Engine
		cfg    *config.BuildConfig
		stdout io.Writer
		stderr io.Writer
		quiet  bool
	}

	// ExecutorOption configures an Executor.
	ExecutorOption func(*Executor)
)

// Error implements the error interface.
func (e *BuildFailureError) Error() string {
	msg := fmt.Sprintf("podman build of %s failed with exit code %d", e.Tag, e.ExitCode)
	if e.Output != "" {
		msg += ":\n" + e.Output
	}
	return msg
}

// Unwrap returns ErrBuildFailure and the engine error.
func (e *BuildFailureError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrBuildFailure}
	}
	return []error{ErrBuildFailure, e.Err}
}

// WithOutput sets where streamed build output goes. Defaults to os.Stdout and os.Stderr.
func WithOutput(stdout, stderr io.Writer) ExecutorOption {
	return func(e *Executor) {
		e.stdout = stdout
		e.stderr = stderr
	}
}

// WithQuiet captures build output instead of streaming it.
func WithQuiet(quiet bool) ExecutorOption {
	return func(e *Executor) {
		e.quiet = quiet
	}
}

// NewExecutor creates an Executor building with engine under cfg.
func NewExecutor(engine container.Engine, cfg *config.BuildConfig, opts ...ExecutorOption) *Executor {
	e := &Executor{
		engine: engine,
		cfg:    cfg,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute builds one step and waits for the engine to finish.
func (e *Executor) Execute(ctx context.Context, step plan.Step) error {
	opts := BuildOptionsFor(step, e.cfg)

	var captured bytes.Buffer
	if e.quiet {
		opts.Stdout = io.Discard
		opts.Stderr = &captured
	} else {
		opts.Stdout = e.stdout
		opts.Stderr = e.stderr
	}

	slog.Debug("building step",
		"tag", step.Tag, "target", step.Target, "definition", step.DefinitionPath, "base", baseImage(step, e.cfg))

	err := e.engine.Build(ctx, opts)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("build of %s interrupted: %w", step.Tag, ctxErr)
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("build of %s: %w", step.Tag, err)
	}
	return &BuildFailureError{
		Tag:      step.Tag,
		ExitCode: types.ExitCode(exitErr.ExitCode()),
		Output:   tail(captured.String(), stderrTailLines),
		Err:      err,
	}
}

// BuildOptionsFor assembles the engine options of one step.
//
// Every build runs with host networking, the sys_admin and mknod
// capabilities, and squashed layers. Rootfs steps additionally get the
// extra build contexts, the package caches, the hooks directory and the
// extra mounts. Empty list entries are skipped.
func BuildOptionsFor(step plan.Step, cfg *config.BuildConfig) container.BuildOptions {
	opts := container.BuildOptions{
		ContextDir: filepath.Dir(step.DefinitionPath),
		File:       step.DefinitionPath,
		Tag:        step.Tag,
		Target:     step.Target,
		BuildArgs:  []container.BuildArg{{Name: BaseImageArg, Value: baseImage(step, cfg)}},
		Network:    container.NetworkHost,
		CapAdd:     append([]string(nil), buildCapabilities...),
		Squash:     true,
		NoCache:    !cfg.BuildCache,
	}
	if !cfg.BuildCache {
		opts.Env = map[string]string{BuildahLayersEnv: "false"}
	}

	if step.Kind != plan.KindRootfs {
		return opts
	}

	for _, c := range cfg.ExtraContexts {
		if c != "" {
			opts.BuildContexts = append(opts.BuildContexts, c)
		}
	}
	if cfg.PacmanCache != "" {
		opts.Volumes = append(opts.Volumes, container.VolumeMount{HostPath: cfg.PacmanCache, ContainerPath: PacmanCacheMount})
	}
	if cfg.AURCache != "" {
		opts.Volumes = append(opts.Volumes, container.VolumeMount{HostPath: cfg.AURCache, ContainerPath: AURCacheMount})
	}
	if cfg.HooksDir != "" {
		opts.Volumes = append(opts.Volumes, container.VolumeMount{HostPath: cfg.HooksDir, ContainerPath: cfg.HooksDir, ReadOnly: true})
		opts.BuildArgs = append(opts.BuildArgs, container.BuildArg{Name: HooksDirArg, Value: cfg.HooksDir})
	}
	for _, m := range cfg.ExtraMounts {
		if m != "" {
			opts.Volumes = append(opts.Volumes, container.VolumeMount{HostPath: m, ContainerPath: m})
		}
	}

	return opts
}

// baseImage is the BASE_IMAGE value of a step: the previous step's local
// image, or the configured first base of the chain.
func baseImage(step plan.Step, cfg *config.BuildConfig) string {
	if step.HasBase() {
		return container.LocalImage(step.BaseImage)
	}
	return cfg.FirstBaseImage(step.Kind)
}

// StageLabel renders a step the way it was requested: "group:stage", or
// "stage" when the definition file is named after the stage.
func StageLabel(step plan.Step) string {
	group := strings.TrimPrefix(filepath.Base(step.DefinitionPath), discovery.DefinitionPrefix)
	if group == step.Target || group == "" {
		return step.Target
	}
	return group + ":" + step.Target
}

// tail returns the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
