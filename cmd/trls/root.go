// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/trellis-build/trls/internal/config"
	"github.com/trellis-build/trls/pkg/types"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// NewRootCommand builds the trls command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "trls",
		Short: "Build layered rootfs images with podman",
		Long: TitleStyle.Render("trls") + SubtitleStyle.Render(" - build layered rootfs images with podman") + `

trls builds a chain of container images from Definition.<group> files.
Each stage is built on top of the image produced by the previous stage,
and the last stage is tagged with the final builder or rootfs tag.

` + SubtitleStyle.Render("Examples:") + `
  trls --rootfs-stages base,desktop build    Build the rootfs chain
  trls run -- cat /etc/os-release            Run a command in the rootfs image
  trls update                                Rebuild and upgrade the host with bootc
  trls clean                                 Remove every trellis image`,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			app.configureLogging(flags.verbose)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				fmt.Fprint(cmd.ErrOrStderr(), cmd.UsageString())
				return ErrMissingCommand
			}
			return &UnsupportedCommandError{Command: args[0]}
		},
	}
	root.SetIn(app.stdin)
	root.SetOut(app.stdout)
	root.SetErr(app.stderr)

	pf := root.PersistentFlags()
	for _, opt := range config.Options() {
		pf.String(opt.Flag, opt.Default, opt.Usage)
	}
	pf.StringVar(&flags.configPath, "config", "",
		fmt.Sprintf("config file (default is $%s, then %s)", config.ConfigPathEnv, config.DefaultConfigPath))
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging and detailed errors")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "hide podman build output unless a stage fails")
	pf.BoolVar(&flags.dryRun, "dry-run", false, "print podman and bootc commands instead of running them")

	root.AddCommand(
		newBuildBuilderCommand(app, flags),
		newBuildCommand(app, flags),
		newRunCommand(app, flags),
		newCleanCommand(app, flags),
		newUpdateCommand(app, flags),
		newConfigCommand(app, flags),
	)

	return root
}

// Execute runs trls with the process arguments and exits on failure.
// This is called by main.main().
func Execute() {
	root := NewRootCommand(NewApp(Dependencies{}))

	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
		fang.WithErrorHandler(newErrorHandler(root)),
	); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a command error to the process status. Codes carried by an
// ExitError are used when they are a valid non-zero status; anything else
// exits with ExitFailure.
func exitCodeFor(err error) int {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code.IsSuccess() {
		return int(types.ExitFailure)
	}
	if verr := exitErr.Code.Validate(); verr != nil {
		slog.Debug("ignoring exit code", "error", verr)
		return int(types.ExitFailure)
	}
	return int(exitErr.Code)
}
