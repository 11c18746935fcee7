// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/trellis-build/trls/internal/plan"
)

func newUpdateCommand(app *App, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Rebuild the rootfs image and upgrade the host with bootc",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.newSession(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			return s.update(cmd.Context())
		},
	}
}

// update builds the rootfs chain and runs bootc upgrade.
func (s *session) update(ctx context.Context) error {
	if err := s.buildChain(ctx, plan.KindRootfs); err != nil {
		return err
	}

	up := s.upgrader()
	version, err := up.Available(ctx)
	if err != nil {
		return err
	}
	slog.Debug("using bootc", "version", version)

	s.reporter.Info("Running bootc upgrade...")
	if err := up.Upgrade(ctx); err != nil {
		return err
	}
	s.reporter.Info("Update completed successfully")
	return nil
}
