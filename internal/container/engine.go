// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/trellis-build/trls/pkg/types"
)

const (
	// LocalhostPrefix is the registry podman assigns to locally built images.
	LocalhostPrefix = "localhost/"

	// NetworkHost shares the host network namespace with the build or container.
	NetworkHost = "host"

	// SELinuxLabelNone means no SELinux label is applied to volume mounts.
	SELinuxLabelNone SELinuxLabel = ""
	// SELinuxLabelShared allows sharing the volume between containers.
	SELinuxLabelShared SELinuxLabel = "z"
	// SELinuxLabelPrivate restricts the volume to a single container.
	SELinuxLabelPrivate SELinuxLabel = "Z"
)

var (
	// ErrEngineNotAvailable is the sentinel error wrapped by EngineNotAvailableError.
	ErrEngineNotAvailable = errors.New("container engine not available")

	// ErrInvalidSELinuxLabel is the sentinel error wrapped by InvalidSELinuxLabelError.
	ErrInvalidSELinuxLabel = errors.New("invalid SELinux label")

	// ErrInvalidVolumeMount is returned when a VolumeMount lacks a host or container path.
	ErrInvalidVolumeMount = errors.New("invalid volume mount")

	// ErrInvalidBuildOptions is returned when BuildOptions cannot produce a build command.
	ErrInvalidBuildOptions = errors.New("invalid build options")
)

type (
	// Engine defines the container operations used by the build pipeline.
	Engine interface {
		// Name returns the engine name.
		Name() string
		// Available checks if the engine is usable on this system.
		Available() bool
		// Version returns the engine version.
		Version(ctx context.Context) (string, error)

		// Build builds one image target from a definition file.
		Build(ctx context.Context, opts BuildOptions) error
		// Run runs a container in the foreground.
		Run(ctx context.Context, opts RunOptions) (*RunResult, error)

		// ImageExists checks if an image exists in local storage.
		ImageExists(ctx context.Context, image string) (bool, error)
		// ListImages returns every local image as "repository:tag".
		ListImages(ctx context.Context) ([]string, error)
		// RemoveImages removes the given images with a single command.
		RemoveImages(ctx context.Context, images []string, force bool) error
		// PruneImages removes dangling images.
		PruneImages(ctx context.Context) error
	}

	// BuildArg is one --build-arg value. Build args are kept ordered so the
	// generated command line is deterministic.
	BuildArg struct {
		Name  string
		Value string
	}

	// SELinuxLabel represents an SELinux volume labeling option.
	SELinuxLabel string

	// InvalidSELinuxLabelError is returned when an SELinuxLabel is not a recognized label.
	InvalidSELinuxLabelError struct {
		Value SELinuxLabel
	}

	// VolumeMount is a bind mount for -v.
	VolumeMount struct {
		HostPath      string
		ContainerPath string
		ReadOnly      bool
		SELinux       SELinuxLabel
	}

	// BuildOptions contains options for building an image.
	BuildOptions struct {
		// ContextDir is the build context directory.
		ContextDir string
		// File is the definition file, absolute or relative to ContextDir.
		File string
		// Tag is the image tag.
		Tag string
		// Target selects the build stage inside File.
		Target string
		// BuildArgs are build-time variables, in command-line order.
		BuildArgs []BuildArg
		// Network is the --net mode; empty uses the engine default.
		Network string
		// CapAdd lists capabilities granted to RUN instructions.
		CapAdd []string
		// Squash squashes the new layers into one.
		Squash bool
		// NoCache disables the layer cache.
		NoCache bool
		// BuildContexts are additional "name=path" build contexts.
		BuildContexts []string
		// Volumes are bind mounts available to RUN instructions.
		Volumes []VolumeMount
		// Env is added to the engine process environment.
		Env map[string]string
		// Stdout is where to write build output.
		Stdout io.Writer
		// Stderr is where to write build errors.
		Stderr io.Writer
	}

	// RunOptions contains options for running a container.
	RunOptions struct {
		// Image is the image to run.
		Image string
		// Command overrides the image command.
		Command []string
		// Network is the --net mode; empty uses the engine default.
		Network string
		// CapAdd lists capabilities granted to the container.
		CapAdd []string
		// Remove automatically removes the container after exit.
		Remove bool
		// Interactive keeps stdin open.
		Interactive bool
		// TTY allocates a pseudo-TTY.
		TTY bool
		// Stdin is the standard input.
		Stdin io.Reader
		// Stdout is where to write standard output.
		Stdout io.Writer
		// Stderr is where to write standard error.
		Stderr io.Writer
	}

	// RunResult contains the result of running a container.
	RunResult struct {
		// ExitCode is the container's exit code.
		ExitCode types.ExitCode
		// Error is set when the engine could not be started at all.
		Error error
	}

	// EngineNotAvailableError is returned when the engine binary cannot be used.
	EngineNotAvailableError struct {
		Engine string
		Reason string
	}
)

// Error implements the error interface.
func (e *EngineNotAvailableError) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// Unwrap returns ErrEngineNotAvailable so callers can use errors.Is for programmatic detection.
func (e *EngineNotAvailableError) Unwrap() error { return ErrEngineNotAvailable }

// String renders the argument as NAME=value.
func (a BuildArg) String() string { return a.Name + "=" + a.Value }

// Error implements the error interface.
func (e *InvalidSELinuxLabelError) Error() string {
	return fmt.Sprintf("invalid SELinux label %q (valid: empty, z, Z)", e.Value)
}

// Unwrap returns ErrInvalidSELinuxLabel so callers can use errors.Is for programmatic detection.
func (e *InvalidSELinuxLabelError) Unwrap() error { return ErrInvalidSELinuxLabel }

// Validate returns an error if the SELinuxLabel is not one of the defined labels.
func (s SELinuxLabel) Validate() error {
	switch s {
	case SELinuxLabelNone, SELinuxLabelShared, SELinuxLabelPrivate:
		return nil
	default:
		return &InvalidSELinuxLabelError{Value: s}
	}
}

// Validate returns an error if either path is blank or the label is unknown.
func (v VolumeMount) Validate() error {
	var errs []error
	if strings.TrimSpace(v.HostPath) == "" {
		errs = append(errs, fmt.Errorf("%w: empty host path", ErrInvalidVolumeMount))
	}
	if strings.TrimSpace(v.ContainerPath) == "" {
		errs = append(errs, fmt.Errorf("%w: empty container path", ErrInvalidVolumeMount))
	}
	if err := v.SELinux.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// String returns the volume mount in "host:container[:options]" format.
func (v VolumeMount) String() string {
	s := v.HostPath + ":" + v.ContainerPath

	var options []string
	if v.ReadOnly {
		options = append(options, "ro")
	}
	if v.SELinux != "" {
		options = append(options, string(v.SELinux))
	}
	if len(options) > 0 {
		s += ":" + strings.Join(options, ",")
	}
	return s
}

// Validate checks the fields every build command needs.
func (o BuildOptions) Validate() error {
	var errs []error
	if o.ContextDir == "" {
		errs = append(errs, fmt.Errorf("%w: missing context directory", ErrInvalidBuildOptions))
	}
	if o.Tag == "" {
		errs = append(errs, fmt.Errorf("%w: missing tag", ErrInvalidBuildOptions))
	}
	for _, v := range o.Volumes {
		if err := v.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LocalImage returns the reference podman uses for a locally built tag.
func LocalImage(tag string) string {
	if strings.HasPrefix(tag, LocalhostPrefix) {
		return tag
	}
	return LocalhostPrefix + tag
}
