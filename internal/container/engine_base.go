// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/trellis-build/trls/internal/issue"
	"github.com/trellis-build/trls/pkg/types"
)

// imageListFormat prints one "repository:tag" line per image.
const imageListFormat = "{{.Repository}}:{{.Tag}}"

type (
	// ExecCommandFunc is the function signature for creating exec.Cmd.
	// This allows injection of mock implementations for testing.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// VolumeFormatFunc formats a volume mount for the -v flag.
	// Podman uses this to add SELinux labels on enforcing hosts.
	VolumeFormatFunc func(volume VolumeMount) string

	// BaseCLIEngineOption configures a BaseCLIEngine.
	BaseCLIEngineOption func(*BaseCLIEngine)

	// BaseCLIEngine provides the argument builders and command execution
	// shared by CLI-based engines. PodmanEngine embeds it and adds
	// availability probing.
	BaseCLIEngine struct {
		name            string
		binaryPath      string
		execCommand     ExecCommandFunc
		volumeFormatter VolumeFormatFunc
		cmdEnvOverrides map[string]string
	}

	// BaseCLIProvider is implemented by engines that embed BaseCLIEngine.
	// DryRunEngine uses it to render the exact command line of the wrapped engine.
	BaseCLIProvider interface {
		BaseCLI() *BaseCLIEngine
	}
)

// --- Option Functions ---

// WithName sets the engine name used in error messages.
func WithName(name string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.name = name
	}
}

// WithExecCommand sets a custom exec command function for testing.
func WithExecCommand(fn ExecCommandFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.execCommand = fn
	}
}

// WithVolumeFormatter sets a custom volume formatter function.
func WithVolumeFormatter(fn VolumeFormatFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.volumeFormatter = fn
	}
}

// WithCmdEnvOverride adds an environment variable applied to every
// exec.Cmd created by this engine.
func WithCmdEnvOverride(key, value string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		if e.cmdEnvOverrides == nil {
			e.cmdEnvOverrides = make(map[string]string)
		}
		e.cmdEnvOverrides[key] = value
	}
}

// --- Constructor ---

// NewBaseCLIEngine creates a new base engine with the given binary path.
func NewBaseCLIEngine(binaryPath string, opts ...BaseCLIEngineOption) *BaseCLIEngine {
	e := &BaseCLIEngine{
		name:            filepath.Base(binaryPath),
		binaryPath:      binaryPath,
		execCommand:     exec.CommandContext,
		volumeFormatter: VolumeMount.String,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// --- Accessor Methods ---

// Name returns the engine name used in messages.
func (e *BaseCLIEngine) Name() string {
	return e.name
}

// BinaryPath returns the path to the container engine binary.
func (e *BaseCLIEngine) BinaryPath() string {
	return e.binaryPath
}

// BaseCLI returns the BaseCLIEngine itself.
func (e *BaseCLIEngine) BaseCLI() *BaseCLIEngine {
	return e
}

// --- Argument Builders ---

// BuildArgs constructs arguments for a build command.
//
// Generated command: <binary> build [options] <context>
func (e *BaseCLIEngine) BuildArgs(opts BuildOptions) []string {
	args := []string{"build"}

	if opts.Network != "" {
		args = append(args, "--net", opts.Network)
	}
	for _, c := range opts.CapAdd {
		args = append(args, "--cap-add", c)
	}
	if opts.Squash {
		args = append(args, "--squash")
	}

	if opts.File != "" {
		file := opts.File
		if !filepath.IsAbs(file) && opts.ContextDir != "" {
			file = filepath.Join(opts.ContextDir, file)
		}
		args = append(args, "-f", file)
	}

	for _, a := range opts.BuildArgs {
		args = append(args, "--build-arg", a.String())
	}

	if opts.Target != "" {
		args = append(args, "--target", opts.Target)
	}

	if opts.Tag != "" {
		args = append(args, "-t", opts.Tag)
	}

	if opts.NoCache {
		args = append(args, "--no-cache")
	}

	for _, c := range opts.BuildContexts {
		args = append(args, "--build-context", c)
	}

	for _, v := range opts.Volumes {
		args = append(args, "-v", e.volumeFormatter(v))
	}

	args = append(args, opts.ContextDir)

	return args
}

// RunArgs constructs arguments for a run command.
//
// Generated command: <binary> run [options] <image> [command...]
func (e *BaseCLIEngine) RunArgs(opts RunOptions) []string {
	args := []string{"run"}

	if opts.Network != "" {
		args = append(args, "--net", opts.Network)
	}
	for _, c := range opts.CapAdd {
		args = append(args, "--cap-add", c)
	}

	if opts.Remove {
		args = append(args, "--rm")
	}

	switch {
	case opts.Interactive && opts.TTY:
		args = append(args, "-it")
	case opts.Interactive:
		args = append(args, "-i")
	case opts.TTY:
		args = append(args, "-t")
	}

	args = append(args, opts.Image)
	args = append(args, opts.Command...)

	return args
}

// ImageExistsArgs constructs arguments for an image existence check.
func (e *BaseCLIEngine) ImageExistsArgs(image string) []string {
	return []string{"image", "exists", image}
}

// ListImagesArgs constructs arguments for listing local images.
func (e *BaseCLIEngine) ListImagesArgs() []string {
	return []string{"images", "--format", imageListFormat}
}

// RemoveImagesArgs constructs arguments for an image remove command.
func (e *BaseCLIEngine) RemoveImagesArgs(images []string, force bool) []string {
	args := []string{"rmi"}
	if force {
		args = append(args, "-f")
	}
	return append(args, images...)
}

// PruneImagesArgs constructs arguments for removing dangling images.
func (e *BaseCLIEngine) PruneImagesArgs() []string {
	return []string{"image", "prune", "-f"}
}

// --- Command Execution ---

// RunCommandStatus executes a command and returns only the error status.
func (e *BaseCLIEngine) RunCommandStatus(ctx context.Context, args ...string) error {
	cmd := e.CreateCommand(ctx, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return e.commandError(args, err, stderr.String())
	}
	return nil
}

// RunCommandWithOutput executes a command with stdout captured to a buffer.
func (e *BaseCLIEngine) RunCommandWithOutput(ctx context.Context, args ...string) (string, error) {
	cmd := e.CreateCommand(ctx, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", e.commandError(args, err, stderr.String())
	}

	return out.String(), nil
}

// CreateCommand creates an exec.Cmd for the given arguments.
// Engine-level env overrides are applied automatically.
func (e *BaseCLIEngine) CreateCommand(ctx context.Context, args ...string) *exec.Cmd {
	cmd := e.execCommand(ctx, e.binaryPath, args...)
	e.customizeCmd(cmd)
	return cmd
}

// --- Engine Methods ---

// Build builds an image. Output streams to opts.Stdout and opts.Stderr.
func (e *BaseCLIEngine) Build(ctx context.Context, opts BuildOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	cmd := e.CreateCommand(ctx, e.BuildArgs(opts)...)
	setEnv(cmd, opts.Env)
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	if err := cmd.Run(); err != nil {
		return buildContainerError(e.name, opts, err)
	}

	return nil
}

// Run runs a container and returns the result.
// A non-zero exit code is captured in RunResult.ExitCode (not returned as error).
// Only infrastructure failures (binary not found, etc.) set RunResult.Error.
func (e *BaseCLIEngine) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if opts.Image == "" {
		return nil, errors.New("run: missing image")
	}

	cmd := e.CreateCommand(ctx, e.RunArgs(opts)...)
	cmd.Stdin = opts.Stdin
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	result := &RunResult{}
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = types.ExitCode(exitErr.ExitCode())
		} else {
			result.ExitCode = types.ExitFailure
			result.Error = err
		}
	}

	return result, nil
}

// ImageExists checks if an image exists. Exit status 1 means "no such
// image"; any other failure is returned as an error.
func (e *BaseCLIEngine) ImageExists(ctx context.Context, image string) (bool, error) {
	cmd := e.CreateCommand(ctx, e.ImageExistsArgs(image)...)
	err := cmd.Run()
	if err == nil {
		return true, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, e.commandError(e.ImageExistsArgs(image), err, "")
}

// ListImages returns every local image as "repository:tag".
func (e *BaseCLIEngine) ListImages(ctx context.Context) ([]string, error) {
	out, err := e.RunCommandWithOutput(ctx, e.ListImagesArgs()...)
	if err != nil {
		return nil, err
	}
	return parseImageList(out), nil
}

// RemoveImages removes images with one command.
func (e *BaseCLIEngine) RemoveImages(ctx context.Context, images []string, force bool) error {
	if len(images) == 0 {
		return nil
	}
	return e.RunCommandStatus(ctx, e.RemoveImagesArgs(images, force)...)
}

// PruneImages removes dangling images.
func (e *BaseCLIEngine) PruneImages(ctx context.Context) error {
	return e.RunCommandStatus(ctx, e.PruneImagesArgs()...)
}

// customizeCmd applies env overrides to a command.
func (e *BaseCLIEngine) customizeCmd(cmd *exec.Cmd) {
	setEnv(cmd, e.cmdEnvOverrides)
}

func (e *BaseCLIEngine) commandError(args []string, err error, stderr string) error {
	if msg := strings.TrimSpace(stderr); msg != "" {
		return fmt.Errorf("command %s %v failed: %w: %s", e.name, args, err, msg)
	}
	return fmt.Errorf("command %s %v failed: %w", e.name, args, err)
}

// setEnv overlays env on the command environment. A nil cmd.Env means
// "inherit everything", so the parent environment is copied first.
func setEnv(cmd *exec.Cmd, env map[string]string) {
	if len(env) == 0 {
		return
	}
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	for _, k := range slices.Sorted(maps.Keys(env)) {
		cmd.Env = append(cmd.Env, k+"="+env[k])
	}
}

// parseImageList splits `images --format` output into trimmed, non-empty lines.
func parseImageList(out string) []string {
	var images []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			images = append(images, line)
		}
	}
	return images
}

// --- Actionable Error Helpers ---

// buildContainerError creates an actionable error for image build failures.
func buildContainerError(engine string, opts BuildOptions, cause error) error {
	ctx := issue.NewErrorContext().
		WithOperation("build container image").
		WithIssue(issue.BuildFailedId)

	switch {
	case opts.Tag != "":
		ctx.WithResource(opts.Tag)
	case opts.File != "":
		ctx.WithResource(opts.File)
	}

	ctx.WithSuggestion("Check the definition file for syntax errors")
	if opts.Target != "" {
		ctx.WithSuggestion("Verify that the definition declares a stage named '" + opts.Target + "'")
	}
	ctx.WithSuggestion("Run with --verbose and without --quiet to see the full " + engine + " output")

	return ctx.Wrap(cause).BuildError()
}
