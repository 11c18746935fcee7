// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trellis-build/trls/internal/build"
)

func newCleanCommand(app *App, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove every trellis-generated image",
		Long: `Remove the final builder and rootfs images, every intermediate
trellis-<kind>-* image, and dangling images.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.newSession(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			return s.clean(cmd.Context())
		},
	}
}

func (s *session) clean(ctx context.Context) error {
	engine, err := s.containerEngine()
	if err != nil {
		return err
	}

	s.reporter.Info("Cleaning trellis-generated images...")
	removed, err := build.NewCleaner(engine, s.config(), s.reporter).Clean(ctx, build.CleanFull)
	if err != nil {
		return err
	}

	if removed == 0 {
		s.reporter.Info("No trellis-generated images found to clean")
	} else {
		s.reporter.Info(fmt.Sprintf("Cleanup completed - removed %d images", removed))
	}
	return nil
}
