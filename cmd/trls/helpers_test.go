// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/trellis-build/trls/internal/container"
	"github.com/trellis-build/trls/internal/testutil"
	"github.com/trellis-build/trls/pkg/types"
)

type (
	// fakeEngine records engine calls without running anything.
	fakeEngine struct {
		images      []string
		buildErrFor map[string]error
		runExit     types.ExitCode

		calls   []string
		builds  []container.BuildOptions
		runs    []container.RunOptions
		removed [][]string
		pruned  int
	}

	// fakeUpgrader records bootc calls.
	fakeUpgrader struct {
		availableErr error
		upgradeErr   error
		dryRun       io.Writer
		calls        *[]string
	}

	// testEnv is an App wired to fakes plus its captured output.
	testEnv struct {
		app           *App
		engine        *fakeEngine
		upgrader      *fakeUpgrader
		stdout        *bytes.Buffer
		stderr        *bytes.Buffer
		engineCreated int
		engineErr     error
		env           map[string]string
		configPath    string
		srcDir        string
	}
)

func (f *fakeEngine) Name() string                            { return "podman" }
func (f *fakeEngine) Available() bool                         { return true }
func (f *fakeEngine) Version(context.Context) (string, error) { return "5.0.0", nil }

func (f *fakeEngine) Build(_ context.Context, opts container.BuildOptions) error {
	f.calls = append(f.calls, "build "+opts.Tag)
	f.builds = append(f.builds, opts)
	return f.buildErrFor[opts.Tag]
}

func (f *fakeEngine) Run(_ context.Context, opts container.RunOptions) (*container.RunResult, error) {
	f.calls = append(f.calls, "run "+opts.Image)
	f.runs = append(f.runs, opts)
	return &container.RunResult{ExitCode: f.runExit}, nil
}

func (f *fakeEngine) ImageExists(_ context.Context, image string) (bool, error) {
	for _, img := range f.images {
		if img == image || strings.TrimSuffix(img, ":latest") == image {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeEngine) ListImages(context.Context) ([]string, error) {
	return slices.Clone(f.images), nil
}

func (f *fakeEngine) RemoveImages(_ context.Context, images []string, _ bool) error {
	f.calls = append(f.calls, "rmi")
	f.removed = append(f.removed, images)
	return nil
}

func (f *fakeEngine) PruneImages(context.Context) error {
	f.calls = append(f.calls, "prune")
	f.pruned++
	return nil
}

func (u *fakeUpgrader) Available(context.Context) (string, error) {
	*u.calls = append(*u.calls, "bootc --version")
	if u.availableErr != nil {
		return "", u.availableErr
	}
	return "bootc 1.1.4", nil
}

func (u *fakeUpgrader) Upgrade(context.Context) error {
	if u.dryRun != nil {
		fmt.Fprintln(u.dryRun, "bootc upgrade")
		return nil
	}
	*u.calls = append(*u.calls, "bootc upgrade")
	return u.upgradeErr
}

// newTestEnv creates an App backed by fakes, a stage tree and a config file
// that disables every host cache.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	te := &testEnv{
		engine: &fakeEngine{},
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
		env:    map[string]string{},
		srcDir: t.TempDir(),
	}
	te.upgrader = &fakeUpgrader{calls: &te.engine.calls}

	testutil.WriteDefinition(t, te.srcDir, "", "base", "FROM ${BASE_IMAGE} AS base\n")
	testutil.WriteDefinition(t, te.srcDir, "multi", "multi",
		"FROM ${BASE_IMAGE} AS stage1\n\nFROM ${BASE_IMAGE} AS stage2\n")
	testutil.WriteDefinition(t, te.srcDir, filepath.Join("builder", "toolchain"), "toolchain",
		"FROM ${BASE_IMAGE} AS toolchain\n")

	te.configPath = filepath.Join(t.TempDir(), "trellis.toml")
	content := fmt.Sprintf(`[environment]
pacman_cache = ""
aur_cache = ""
hooks_dir = ""
src_dir = %q
`, te.srcDir)
	if err := os.WriteFile(te.configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	te.app = NewApp(Dependencies{
		Engine: func() (container.Engine, error) {
			te.engineCreated++
			if te.engineErr != nil {
				return nil, te.engineErr
			}
			return te.engine, nil
		},
		Upgrader: func(dryRun io.Writer) Upgrader {
			te.upgrader.dryRun = dryRun
			return te.upgrader
		},
		Getenv: func(key string) string { return te.env[key] },
		Stdin:  strings.NewReader(""),
		Stdout: te.stdout,
		Stderr: te.stderr,
	})
	return te
}

// run executes trls with args after the test config flag.
func (te *testEnv) run(args ...string) error {
	root := NewRootCommand(te.app)
	root.SetArgs(append([]string{"--config", te.configPath}, args...))
	return root.ExecuteContext(context.Background())
}

// assertNoError fails the test with the captured output when err is non-nil.
func (te *testEnv) assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v\nstdout:\n%s\nstderr:\n%s", err, te.stdout, te.stderr)
	}
}

func buildTags(builds []container.BuildOptions) []string {
	tags := make([]string, len(builds))
	for i, b := range builds {
		tags[i] = b.Tag
	}
	return tags
}

var errBoom = errors.New("boom")
