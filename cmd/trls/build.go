// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/trellis-build/trls/internal/build"
	"github.com/trellis-build/trls/internal/discovery"
	"github.com/trellis-build/trls/internal/plan"
)

func newBuildBuilderCommand(app *App, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "build-builder",
		Short: "Build the builder image chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.newSession(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			return s.buildChain(cmd.Context(), plan.KindBuilder)
		},
	}
}

func newBuildCommand(app *App, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build the rootfs image chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.newSession(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			return s.buildChain(cmd.Context(), plan.KindRootfs)
		},
	}
}

// buildChain plans and builds the stage chain of kind, then removes the
// intermediate images when auto_clean is set.
func (s *session) buildChain(ctx context.Context, kind plan.Kind) error {
	cfg := s.config()
	finalTag, specs := cfg.Chain(kind)

	locator := discovery.NewLocator(cfg.SrcDir)
	steps, err := plan.NewPlanner(locator).Plan(kind, finalTag, specs)
	for _, diag := range locator.Diagnostics() {
		slog.Warn("skipping unreadable path during stage discovery", "path", diag.Path, "error", diag.Cause)
	}
	if err != nil {
		return err
	}

	if len(steps) == 0 {
		s.reporter.Info(fmt.Sprintf("No %s stages configured, nothing to build", kind))
		return nil
	}

	engine, err := s.containerEngine()
	if err != nil {
		return err
	}

	executor := build.NewExecutor(engine, cfg,
		build.WithOutput(s.app.stdout, s.app.stderr),
		build.WithQuiet(s.flags.quiet))
	if err := build.NewPipeline(executor, s.reporter).Run(ctx, steps); err != nil {
		return err
	}

	switch kind {
	case plan.KindBuilder:
		s.reporter.Info("Builder container built successfully")
	default:
		s.reporter.Info("Rootfs container built successfully")
	}

	if !cfg.AutoClean {
		return nil
	}
	removed, err := build.NewCleaner(engine, cfg, s.reporter).Clean(ctx, build.CleanAuto)
	if err != nil {
		return err
	}
	if removed > 0 {
		s.reporter.Info(fmt.Sprintf("Auto-cleanup removed %d intermediate images", removed))
	}
	return nil
}
