// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const (
	// EnginePodman is the name of the podman engine.
	EnginePodman = "podman"

	selinuxEnforcePath = "/sys/fs/selinux/enforce"
)

type (
	// PodmanEngine implements the Engine interface using the podman CLI.
	// It embeds BaseCLIEngine for argument construction and execution.
	PodmanEngine struct {
		*BaseCLIEngine
	}

	// SELinuxCheckFunc reports whether SELinux is enforcing.
	SELinuxCheckFunc func() bool
)

// NewPodmanEngine creates a new Podman engine resolved from PATH.
// On SELinux-enforcing hosts volume mounts are labeled with :z.
func NewPodmanEngine(opts ...BaseCLIEngineOption) *PodmanEngine {
	path, err := exec.LookPath(EnginePodman)
	if err != nil {
		path = ""
	}

	allOpts := append([]BaseCLIEngineOption{
		WithName(EnginePodman),
		WithVolumeFormatter(selinuxVolumeFormatter(isSELinuxEnabled)),
	}, opts...)

	return &PodmanEngine{BaseCLIEngine: NewBaseCLIEngine(path, allOpts...)}
}

// NewEngine returns a podman engine, or EngineNotAvailableError when podman
// cannot be found or does not respond.
func NewEngine(opts ...BaseCLIEngineOption) (*PodmanEngine, error) {
	e := NewPodmanEngine(opts...)
	if !e.Available() {
		return nil, &EngineNotAvailableError{
			Engine: EnginePodman,
			Reason: "podman is not installed or not accessible",
		}
	}
	return e, nil
}

// Available checks if podman is installed and answers a version query.
func (e *PodmanEngine) Available() bool {
	if e.BinaryPath() == "" {
		return false
	}
	cmd := e.CreateCommand(context.Background(), "version", "--format", "{{.Version}}")
	return cmd.Run() == nil
}

// Version returns the podman version.
func (e *PodmanEngine) Version(ctx context.Context) (string, error) {
	out, err := e.RunCommandWithOutput(ctx, "version", "--format", "{{.Version}}")
	if err != nil {
		return "", fmt.Errorf("failed to get podman version: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// isSELinuxEnabled checks /sys/fs/selinux/enforce.
func isSELinuxEnabled() bool {
	data, err := os.ReadFile(selinuxEnforcePath)
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "1"
}

// selinuxVolumeFormatter adds the shared :z label when SELinux is enforcing
// and the mount carries no label of its own.
func selinuxVolumeFormatter(enabled SELinuxCheckFunc) VolumeFormatFunc {
	return func(v VolumeMount) string {
		if v.SELinux == SELinuxLabelNone && enabled() {
			v.SELinux = SELinuxLabelShared
		}
		return v.String()
	}
}
