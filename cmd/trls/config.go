// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trellis-build/trls/internal/config"
)

func newConfigCommand(app *App, flags *globalFlags) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the trls configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	configCmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration as TOML",
			Long: `Print the effective configuration (defaults, then the config file,
then command-line flags) as a TOML document that can be saved as the
configuration file.`,
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, err := app.newSession(cmd.Context(), cmd, flags)
				if err != nil {
					return err
				}
				out, err := config.GenerateTOML(s.config())
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(app.stdout, out)
				return err
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the configuration file path",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				path, _ := config.ConfigFilePath(flags.configPath, app.getenv(config.ConfigPathEnv))
				_, err := fmt.Fprintln(app.stdout, path)
				return err
			},
		},
	)

	return configCmd
}
