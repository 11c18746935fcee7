// SPDX-License-Identifier: MPL-2.0

package bootc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/trellis-build/trls/internal/issue"
)

// helperCommand returns an exec function whose commands run TestHelperProcess
// and records the arguments of each call.
func helperCommand(t *testing.T, exitCode int, stdout, stderr string, calls *[][]string) func(context.Context, string, ...string) *exec.Cmd {
	t.Helper()
	return func(_ context.Context, name string, args ...string) *exec.Cmd {
		*calls = append(*calls, append([]string{name}, args...))
		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
		//nolint:gosec // test-only helper process
		cmd := exec.Command(os.Args[0], cs...) //nolint:noctx // exec.Command used intentionally for test helper
		cmd.Env = []string{
			"GO_WANT_HELPER_PROCESS=1",
			fmt.Sprintf("GO_HELPER_EXIT_CODE=%d", exitCode),
			"GO_HELPER_STDOUT=" + stdout,
			"GO_HELPER_STDERR=" + stderr,
		}
		return cmd
	}
}

// TestHelperProcess is invoked by helperCommand.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	fmt.Fprint(os.Stdout, os.Getenv("GO_HELPER_STDOUT"))
	fmt.Fprint(os.Stderr, os.Getenv("GO_HELPER_STDERR"))

	exitCode := 0
	fmt.Sscanf(os.Getenv("GO_HELPER_EXIT_CODE"), "%d", &exitCode)
	os.Exit(exitCode)
}

func TestUpgrader_Available(t *testing.T) {
	t.Parallel()

	t.Run("version reported", func(t *testing.T) {
		t.Parallel()
		var calls [][]string
		u := New(WithExecCommand(helperCommand(t, 0, "bootc 1.1.4\n", "", &calls)))

		version, err := u.Available(context.Background())
		if err != nil || version != "bootc 1.1.4" {
			t.Errorf("Available() = %q, %v", version, err)
		}
		if len(calls) != 1 || calls[0][len(calls[0])-1] != "--version" {
			t.Errorf("calls = %q", calls)
		}
	})

	t.Run("not responding", func(t *testing.T) {
		t.Parallel()
		var calls [][]string
		u := New(WithExecCommand(helperCommand(t, 1, "", "", &calls)))

		_, err := u.Available(context.Background())
		if !errors.Is(err, ErrNotAvailable) || !strings.Contains(err.Error(), "not responding") {
			t.Fatalf("Available() error = %v", err)
		}
		var ae *issue.ActionableError
		if !errors.As(err, &ae) || ae.Issue != issue.BootcNotFoundId {
			t.Errorf("error should link the bootc issue, got %T", err)
		}
	})

	t.Run("not installed", func(t *testing.T) {
		t.Parallel()
		u := New(WithExecCommand(exec.CommandContext))
		u.binary = "/nonexistent/bootc"

		_, err := u.Available(context.Background())
		if !errors.Is(err, ErrNotAvailable) || !strings.Contains(err.Error(), "not installed") {
			t.Errorf("Available() error = %v", err)
		}
	})
}

func TestUpgrader_Upgrade(t *testing.T) {
	t.Parallel()

	t.Run("success streams output", func(t *testing.T) {
		t.Parallel()
		var calls [][]string
		var stdout, stderr bytes.Buffer
		u := New(WithExecCommand(helperCommand(t, 0, "Queued for next boot", "", &calls)), WithOutput(&stdout, &stderr))

		if err := u.Upgrade(context.Background()); err != nil {
			t.Fatalf("Upgrade() unexpected error: %v", err)
		}
		if stdout.String() != "Queued for next boot" {
			t.Errorf("stdout = %q", stdout.String())
		}
		if len(calls) != 1 || calls[0][len(calls[0])-1] != "upgrade" {
			t.Errorf("calls = %q", calls)
		}
	})

	t.Run("failure includes stderr", func(t *testing.T) {
		t.Parallel()
		var calls [][]string
		var stderr bytes.Buffer
		u := New(WithExecCommand(helperCommand(t, 1, "", "error: not a bootc host", &calls)), WithOutput(&bytes.Buffer{}, &stderr))

		err := u.Upgrade(context.Background())
		if err == nil || !strings.Contains(err.Error(), "not a bootc host") {
			t.Errorf("Upgrade() error = %v", err)
		}
		if stderr.String() != "error: not a bootc host" {
			t.Errorf("stderr should still be streamed, got %q", stderr.String())
		}
		var ae *issue.ActionableError
		if !errors.As(err, &ae) || len(ae.Suggestions) != 2 || !strings.Contains(ae.Format(false), "bootc status") {
			t.Errorf("error should carry both upgrade hints, got %#v", ae)
		}
	})

	t.Run("dry run prints", func(t *testing.T) {
		t.Parallel()
		var calls [][]string
		var out bytes.Buffer
		u := New(WithExecCommand(helperCommand(t, 1, "", "", &calls)), WithDryRun(&out))

		if err := u.Upgrade(context.Background()); err != nil {
			t.Fatalf("Upgrade() unexpected error: %v", err)
		}
		if out.String() != "bootc upgrade\n" || len(calls) != 0 {
			t.Errorf("out = %q, calls = %q", out.String(), calls)
		}
	})
}
