// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/trellis-build/trls/internal/build"
	"github.com/trellis-build/trls/internal/config"
	"github.com/trellis-build/trls/internal/container"
	"github.com/trellis-build/trls/internal/discovery"
	"github.com/trellis-build/trls/internal/issue"
	"github.com/trellis-build/trls/internal/stage"
	"github.com/trellis-build/trls/internal/testutil"
	"github.com/trellis-build/trls/pkg/types"
)

func TestRoot_MissingCommand(t *testing.T) {
	te := newTestEnv(t)

	err := te.run()
	if !errors.Is(err, ErrMissingCommand) {
		t.Fatalf("error = %v, want ErrMissingCommand", err)
	}
	if !strings.Contains(te.stderr.String(), "Usage:") {
		t.Errorf("usage should be printed to stderr, got %q", te.stderr.String())
	}
}

func TestRoot_UnsupportedCommand(t *testing.T) {
	te := newTestEnv(t)

	err := te.run("frobnicate")
	var unsupported *UnsupportedCommandError
	if !errors.As(err, &unsupported) || unsupported.Command != "frobnicate" {
		t.Fatalf("error = %v, want UnsupportedCommandError", err)
	}
	if !errors.Is(err, ErrUnsupportedCommand) {
		t.Error("errors.Is(err, ErrUnsupportedCommand) = false")
	}
}

func TestRoot_HelpSucceeds(t *testing.T) {
	te := newTestEnv(t)

	te.assertNoError(t, te.run("--help"))
	for _, flag := range []string{"--rootfs-stages", "--podman-build-cache", "--extra-contexts", "--dry-run"} {
		if !strings.Contains(te.stdout.String(), flag) {
			t.Errorf("help misses %s", flag)
		}
	}
}

func TestBuild_RootfsChain(t *testing.T) {
	te := newTestEnv(t)

	te.assertNoError(t, te.run("--rootfs-stages", "base,multi:stage1,multi:stage2", "build"))

	want := []string{"trellis-rootfs-base", "trellis-rootfs-multi-stage1", "trellis-rootfs"}
	if got := buildTags(te.engine.builds); !slices.Equal(got, want) {
		t.Fatalf("built %q, want %q", got, want)
	}
	bases := []string{"scratch", "localhost/trellis-rootfs-base", "localhost/trellis-rootfs-multi-stage1"}
	for i, b := range te.engine.builds {
		if b.BuildArgs[0].Value != bases[i] {
			t.Errorf("step %d BASE_IMAGE = %q, want %q", i, b.BuildArgs[0].Value, bases[i])
		}
	}
	out := te.stdout.String()
	for _, want := range []string{
		"====> Building stage 1/3: base -> trellis-rootfs-base",
		"====> Rootfs container built successfully",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout misses %q:\n%s", want, out)
		}
	}
	if len(te.engine.removed) != 0 {
		t.Errorf("auto-clean is off, but images were removed: %q", te.engine.removed)
	}
}

func TestBuild_FlagsAfterSubcommand(t *testing.T) {
	te := newTestEnv(t)

	te.assertNoError(t, te.run("build", "--rootfs-stages", "base", "--rootfs-tag", "custom"))
	if got := buildTags(te.engine.builds); !slices.Equal(got, []string{"custom"}) {
		t.Errorf("built %q, want [custom]", got)
	}
}

func TestBuildBuilder(t *testing.T) {
	te := newTestEnv(t)

	te.assertNoError(t, te.run("--builder-stages", "toolchain", "--rootfs-stages", "base", "build-builder"))

	if got := buildTags(te.engine.builds); !slices.Equal(got, []string{"trellis-builder"}) {
		t.Fatalf("built %q, want [trellis-builder]", got)
	}
	if !strings.Contains(te.stdout.String(), "Builder container built successfully") {
		t.Errorf("stdout = %q", te.stdout.String())
	}
}

func TestBuild_EmptyStageList(t *testing.T) {
	te := newTestEnv(t)

	te.assertNoError(t, te.run("build"))
	if te.engineCreated != 0 || len(te.engine.builds) != 0 {
		t.Errorf("engine used for an empty plan: created=%d builds=%d", te.engineCreated, len(te.engine.builds))
	}
	if !strings.Contains(te.stdout.String(), "No rootfs stages configured") {
		t.Errorf("stdout = %q", te.stdout.String())
	}
}

func TestBuild_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"wrong case boolean", []string{"--podman-build-cache", "TRUE", "--rootfs-stages", "base", "build"}, config.ErrInvalidConfigValue},
		{"malformed token", []string{"--rootfs-stages", "multi:", "build"}, stage.ErrMalformedStageToken},
		{"unknown group", []string{"--rootfs-stages", "base,gpu", "build"}, discovery.ErrStageFileNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := newTestEnv(t)

			err := te.run(tt.args...)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if len(te.engine.builds) != 0 {
				t.Errorf("no build should be attempted, got %q", buildTags(te.engine.builds))
			}
		})
	}
}

func TestBuild_FailureHalts(t *testing.T) {
	te := newTestEnv(t)
	te.engine.buildErrFor = map[string]error{"trellis-rootfs-multi-stage1": errBoom}

	err := te.run("--rootfs-stages", "base,multi:stage1,multi:stage2", "build")
	if !errors.Is(err, errBoom) {
		t.Fatalf("error = %v, want the engine error", err)
	}
	if got := buildTags(te.engine.builds); len(got) != 2 {
		t.Errorf("built %q, want the chain to stop after the failing stage", got)
	}
	if strings.Contains(te.stdout.String(), "built successfully") {
		t.Error("success reported for a failed build")
	}
}

func TestBuild_AutoClean(t *testing.T) {
	te := newTestEnv(t)
	te.engine.images = []string{
		"localhost/trellis-rootfs:latest",
		"localhost/trellis-rootfs-base:latest",
		"docker.io/library/alpine:latest",
	}

	te.assertNoError(t, te.run("--auto-clean", "yes", "--rootfs-stages", "base,multi:stage2", "build"))

	if len(te.engine.removed) != 1 || !slices.Equal(te.engine.removed[0], []string{"localhost/trellis-rootfs-base:latest"}) {
		t.Errorf("removed %q, want only the intermediate image", te.engine.removed)
	}
	if te.engine.pruned != 0 {
		t.Error("auto-clean must not prune")
	}
	if !strings.Contains(te.stdout.String(), "Auto-cleanup removed 1 intermediate images") {
		t.Errorf("stdout = %q", te.stdout.String())
	}
}

func TestBuild_DryRun(t *testing.T) {
	te := newTestEnv(t)

	te.assertNoError(t, te.run("--dry-run", "--rootfs-stages", "base", "build"))
	if len(te.engine.builds) != 0 {
		t.Errorf("dry run executed %d builds", len(te.engine.builds))
	}
	if !strings.Contains(te.stdout.String(), "podman build --net host") {
		t.Errorf("stdout should show the build command, got %q", te.stdout.String())
	}
}

func TestBuild_EngineUnavailable(t *testing.T) {
	te := newTestEnv(t)
	te.engineErr = &container.EngineNotAvailableError{Engine: container.EnginePodman, Reason: "not installed"}

	err := te.run("--rootfs-stages", "base", "build")
	var ae *issue.ActionableError
	if !errors.As(err, &ae) || ae.Issue != issue.ContainerEngineNotFoundId {
		t.Fatalf("error = %v, want an actionable engine error", err)
	}
	if !errors.Is(err, container.ErrEngineNotAvailable) {
		t.Error("errors.Is(err, ErrEngineNotAvailable) = false")
	}
}

func TestRun(t *testing.T) {
	t.Run("passes arguments", func(t *testing.T) {
		te := newTestEnv(t)
		te.engine.images = []string{"localhost/trellis-rootfs:latest"}

		te.assertNoError(t, te.run("run", "ls", "-la", "/"))
		if len(te.engine.runs) != 1 {
			t.Fatalf("runs = %d, want 1", len(te.engine.runs))
		}
		got := te.engine.runs[0]
		if got.Image != "localhost/trellis-rootfs" || !slices.Equal(got.Command, []string{"ls", "-la", "/"}) {
			t.Errorf("run options = %+v", got)
		}
		if got.Network != container.NetworkHost || !slices.Equal(got.CapAdd, []string{"all"}) || !got.Remove || !got.TTY {
			t.Errorf("run options = %+v", got)
		}
	})

	t.Run("missing image", func(t *testing.T) {
		te := newTestEnv(t)

		err := te.run("run")
		var ae *issue.ActionableError
		if !errors.As(err, &ae) || ae.Issue != issue.ImageNotFoundId {
			t.Fatalf("error = %v, want image not found", err)
		}
		if !strings.Contains(err.Error(), "localhost/trellis-rootfs") {
			t.Errorf("error = %q", err)
		}
		if len(te.engine.runs) != 0 {
			t.Error("container started without an image")
		}
	})

	t.Run("non-zero exit", func(t *testing.T) {
		te := newTestEnv(t)
		te.engine.images = []string{"localhost/trellis-rootfs:latest"}
		te.engine.runExit = 3

		err := te.run("run", "false")
		var exitErr *ExitError
		if !errors.As(err, &exitErr) || exitErr.Code != 1 {
			t.Fatalf("error = %v, want ExitError with code 1", err)
		}
		if !strings.Contains(err.Error(), "code 3") {
			t.Errorf("error = %q", err)
		}
	})
}

func TestClean(t *testing.T) {
	te := newTestEnv(t)
	te.engine.images = []string{
		"localhost/trellis-rootfs:latest",
		"localhost/trellis-builder:latest",
		"localhost/trellis-rootfs-base:latest",
		"docker.io/library/alpine:latest",
	}

	te.assertNoError(t, te.run("clean"))
	if len(te.engine.removed) != 1 || len(te.engine.removed[0]) != 3 {
		t.Errorf("removed %q, want the three trellis images", te.engine.removed)
	}
	if te.engine.pruned != 1 {
		t.Errorf("pruned %d times, want 1", te.engine.pruned)
	}
	if !strings.Contains(te.stdout.String(), "Cleanup completed - removed 3 images") {
		t.Errorf("stdout = %q", te.stdout.String())
	}
}

func TestClean_NothingToDo(t *testing.T) {
	te := newTestEnv(t)

	te.assertNoError(t, te.run("clean"))
	if !strings.Contains(te.stdout.String(), "No trellis-generated images found to clean") {
		t.Errorf("stdout = %q", te.stdout.String())
	}
}

func TestUpdate(t *testing.T) {
	t.Run("builds then upgrades", func(t *testing.T) {
		te := newTestEnv(t)

		te.assertNoError(t, te.run("--rootfs-stages", "base", "update"))
		want := []string{"build trellis-rootfs", "bootc --version", "bootc upgrade"}
		if !slices.Equal(te.engine.calls, want) {
			t.Errorf("calls = %q, want %q", te.engine.calls, want)
		}
		if !strings.Contains(te.stdout.String(), "Update completed successfully") {
			t.Errorf("stdout = %q", te.stdout.String())
		}
	})

	t.Run("build failure skips upgrade", func(t *testing.T) {
		te := newTestEnv(t)
		te.engine.buildErrFor = map[string]error{"trellis-rootfs": errBoom}

		if err := te.run("--rootfs-stages", "base", "update"); !errors.Is(err, errBoom) {
			t.Fatalf("error = %v", err)
		}
		if slices.Contains(te.engine.calls, "bootc upgrade") {
			t.Error("upgrade ran after a failed build")
		}
	})

	t.Run("bootc missing", func(t *testing.T) {
		te := newTestEnv(t)
		te.upgrader.availableErr = errBoom

		if err := te.run("--rootfs-stages", "base", "update"); !errors.Is(err, errBoom) {
			t.Fatalf("error = %v", err)
		}
		if slices.Contains(te.engine.calls, "bootc upgrade") {
			t.Error("upgrade ran without bootc")
		}
	})

	t.Run("dry run", func(t *testing.T) {
		te := newTestEnv(t)

		te.assertNoError(t, te.run("--dry-run", "--rootfs-stages", "base", "update"))
		if !strings.Contains(te.stdout.String(), "bootc upgrade") || slices.Contains(te.engine.calls, "bootc upgrade") {
			t.Errorf("dry run should print the upgrade, stdout = %q calls = %q", te.stdout.String(), te.engine.calls)
		}
	})
}

func TestConfigShow(t *testing.T) {
	te := newTestEnv(t)

	te.assertNoError(t, te.run("--rootfs-tag", "custom-rootfs", "--rootfs-stages", "base,multi:stage1", "config", "show"))
	out := te.stdout.String()
	for _, want := range []string{"[build]", "[environment]", "custom-rootfs", "base,multi:stage1"} {
		if !strings.Contains(out, want) {
			t.Errorf("config show misses %q:\n%s", want, out)
		}
	}
}

func TestConfigPath(t *testing.T) {
	te := newTestEnv(t)
	te.env[config.ConfigPathEnv] = "/srv/trellis.toml"

	root := NewRootCommand(te.app)
	root.SetArgs([]string{"config", "path"})
	te.assertNoError(t, root.Execute())
	if got := strings.TrimSpace(te.stdout.String()); got != "/srv/trellis.toml" {
		t.Errorf("config path = %q", got)
	}

	te.stdout.Reset()
	te.assertNoError(t, te.run("config", "path"))
	if got := strings.TrimSpace(te.stdout.String()); got != te.configPath {
		t.Errorf("config path with --config = %q, want %q", got, te.configPath)
	}
}

func TestRenderError(t *testing.T) {
	t.Parallel()

	actionable := issue.NewErrorContext().
		WithOperation("run the rootfs image").
		WithResource("localhost/trellis-rootfs").
		WithSuggestion("Run 'trls build' first").
		WithIssue(issue.ImageNotFoundId).
		Wrap(errBoom).
		BuildError()

	t.Run("single line", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		renderError(&buf, actionable, false)
		want := "====> ERROR: failed to run the rootfs image: localhost/trellis-rootfs: boom\n"
		if buf.String() != want {
			t.Errorf("renderError() = %q, want %q", buf.String(), want)
		}
	})

	t.Run("verbose adds suggestions", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		renderError(&buf, actionable, true)
		if !strings.Contains(buf.String(), "Run 'trls build' first") {
			t.Errorf("renderError() = %q", buf.String())
		}
	})

	t.Run("build output kept", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		renderError(&buf, &build.BuildFailureError{Tag: "trellis-rootfs", ExitCode: 1, Output: "Error: boom"}, false)
		if !strings.HasSuffix(buf.String(), ":\nError: boom\n") {
			t.Errorf("renderError() = %q", buf.String())
		}
	})
}

func TestIssueFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want issue.Id
	}{
		{&discovery.StageFileNotFoundError{Group: "gpu"}, issue.StageFileNotFoundId},
		{&stage.MalformedStageTokenError{Token: "a:"}, issue.MalformedStageTokenId},
		{&config.InvalidConfigValueError{Key: "k", Value: "TRUE"}, issue.InvalidConfigValueId},
		{&build.BuildFailureError{Tag: "t"}, issue.BuildFailedId},
		{&UnsupportedCommandError{Command: "x"}, 0},
	}
	for _, tt := range tests {
		if got := issueFor(tt.err); got != tt.want {
			t.Errorf("issueFor(%T) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestBuild_UnreadableDirectoryWarnsOnce(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}

	te := newTestEnv(t)
	locked := filepath.Join(te.srcDir, "locked")
	testutil.WriteDefinition(t, locked, "", "hidden", "FROM scratch AS hidden\n")
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	te.assertNoError(t, te.run("--rootfs-stages", "base", "build"))

	logs := te.stderr.String()
	if n := strings.Count(logs, "skipping unreadable path"); n != 1 {
		t.Errorf("unreadable path logged %d times, want once:\n%s", n, logs)
	}
	if !strings.Contains(logs, locked) {
		t.Errorf("warning should name %s:\n%s", locked, logs)
	}
}

func TestExitCodeFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "plain error", err: errBoom, want: 1},
		{name: "exit error", err: &ExitError{Code: 3, Err: errBoom}, want: 3},
		{name: "wrapped exit error", err: fmt.Errorf("run: %w", &ExitError{Code: 130}), want: 130},
		{name: "success code", err: &ExitError{Code: types.ExitSuccess}, want: 1},
		{name: "negative code", err: &ExitError{Code: -1}, want: 1},
		{name: "code above 255", err: &ExitError{Code: 256}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := exitCodeFor(tt.err); got != tt.want {
				t.Errorf("exitCodeFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
