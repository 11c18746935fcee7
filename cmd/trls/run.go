// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trellis-build/trls/internal/container"
	"github.com/trellis-build/trls/internal/issue"
	"github.com/trellis-build/trls/pkg/types"
)

func newRunCommand(app *App, flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [args...]",
		Short: "Run a command in the rootfs image",
		Long: `Run a command in a throwaway container of the rootfs image.

The container shares the host network and has every capability. Arguments
after the first positional argument are passed to the container unchanged.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.newSession(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			return s.runRootfs(cmd.Context(), args)
		},
	}
	cmd.Flags().SetInterspersed(false)
	return cmd
}

// runRootfs runs args in localhost/<rootfs tag>.
func (s *session) runRootfs(ctx context.Context, args []string) error {
	engine, err := s.containerEngine()
	if err != nil {
		return err
	}

	image := container.LocalImage(s.config().RootfsTag)
	exists, err := engine.ImageExists(ctx, image)
	if err != nil {
		return err
	}
	if !exists {
		return issue.NewErrorContext().
			WithOperation("run the rootfs image").
			WithResource(image).
			WithSuggestion("Run 'trls build' first").
			WithIssue(issue.ImageNotFoundId).
			Wrap(fmt.Errorf("container image not found: %s", image)).
			BuildError()
	}

	result, err := engine.Run(ctx, container.RunOptions{
		Image:       image,
		Command:     args,
		Network:     container.NetworkHost,
		CapAdd:      []string{"all"},
		Remove:      true,
		Interactive: true,
		TTY:         true,
		Stdin:       s.app.stdin,
		Stdout:      s.app.stdout,
		Stderr:      s.app.stderr,
	})
	if err != nil {
		return err
	}
	if result.Error != nil {
		return fmt.Errorf("failed to run %s: %w", image, result.Error)
	}
	if !result.ExitCode.IsSuccess() {
		cause := fmt.Errorf("container exited with code %d", result.ExitCode)
		if result.ExitCode < 0 || result.ExitCode.IsSignal() {
			cause = fmt.Errorf("container interrupted (exit code %d)", result.ExitCode)
		}
		return &ExitError{Code: types.ExitFailure, Err: cause}
	}
	return nil
}
