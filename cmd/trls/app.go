// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/trellis-build/trls/internal/bootc"
	"github.com/trellis-build/trls/internal/config"
	"github.com/trellis-build/trls/internal/container"
	"github.com/trellis-build/trls/internal/issue"
)

type (
	// EngineFactory creates the container engine used by a command.
	EngineFactory func() (container.Engine, error)

	// Upgrader hands the rootfs image to the host.
	Upgrader interface {
		Available(ctx context.Context) (string, error)
		Upgrade(ctx context.Context) error
	}

	// UpgraderFactory creates an Upgrader. A non-nil dryRun receives the
	// upgrade command instead of running it.
	UpgraderFactory func(dryRun io.Writer) Upgrader

	// App wires CLI services and shared dependencies. Cobra command handlers
	// receive an App reference and reach configuration, podman and bootc
	// through it.
	App struct {
		Config      config.Provider
		newEngine   EngineFactory
		newUpgrader UpgraderFactory
		getenv      func(string) string
		stdin       io.Reader
		stdout      io.Writer
		stderr      io.Writer
	}

	// Dependencies defines the injection points for building an App. Nil fields are
	// replaced with production defaults by NewApp.
	Dependencies struct {
		Config   config.Provider
		Engine   EngineFactory
		Upgrader UpgraderFactory
		Getenv   func(string) string
		Stdin    io.Reader
		Stdout   io.Writer
		Stderr   io.Writer
	}

	// globalFlags are the flags shared by every subcommand.
	globalFlags struct {
		configPath string
		verbose    bool
		quiet      bool
		dryRun     bool
	}

	// session is the per-invocation state of one subcommand.
	session struct {
		app      *App
		flags    *globalFlags
		loaded   *config.Loaded
		reporter *reporter
		engine   container.Engine
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdin == nil {
		deps.Stdin = os.Stdin
	}
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.Getenv == nil {
		deps.Getenv = os.Getenv
	}
	if deps.Engine == nil {
		deps.Engine = func() (container.Engine, error) {
			engine, err := container.NewEngine()
			if err != nil {
				return nil, err
			}
			return engine, nil
		}
	}
	if deps.Upgrader == nil {
		stdout, stderr := deps.Stdout, deps.Stderr
		deps.Upgrader = func(dryRun io.Writer) Upgrader {
			opts := []bootc.Option{bootc.WithOutput(stdout, stderr)}
			if dryRun != nil {
				opts = append(opts, bootc.WithDryRun(dryRun))
			}
			return bootc.New(opts...)
		}
	}

	return &App{
		Config:      deps.Config,
		newEngine:   deps.Engine,
		newUpgrader: deps.Upgrader,
		getenv:      deps.Getenv,
		stdin:       deps.Stdin,
		stdout:      deps.Stdout,
		stderr:      deps.Stderr,
	}
}

// configureLogging installs a charmbracelet/log handler as the slog default.
func (a *App) configureLogging(verbose bool) {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(a.stderr, log.Options{
		Prefix: "trls",
		Level:  level,
	})
	slog.SetDefault(slog.New(logger))
}

// newSession resolves the configuration for cmd. Only flags the user set
// override file values.
func (a *App) newSession(ctx context.Context, cmd *cobra.Command, flags *globalFlags) (*session, error) {
	loaded, err := a.Config.Load(ctx, config.LoadOptions{
		ConfigFilePath: flags.configPath,
		EnvConfigPath:  a.getenv(config.ConfigPathEnv),
		Overrides:      overridesFromFlags(cmd.Flags()),
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("configuration resolved", "path", loaded.Path, "fromFile", loaded.FromFile)

	return &session{
		app:      a,
		flags:    flags,
		loaded:   loaded,
		reporter: newReporter(a.stdout, a.stderr),
	}, nil
}

// overridesFromFlags collects the configuration flags set on the command line.
func overridesFromFlags(fs *pflag.FlagSet) config.Layer {
	overrides := config.Layer{}
	fs.Visit(func(f *pflag.Flag) {
		if opt, ok := config.LookupFlag(f.Name); ok {
			overrides[opt.Key] = f.Value.String()
		}
	})
	return overrides
}

func (s *session) config() *config.BuildConfig { return s.loaded.Config }

// containerEngine creates the engine on first use. In dry-run mode the
// engine prints mutating commands to stdout.
func (s *session) containerEngine() (container.Engine, error) {
	if s.engine != nil {
		return s.engine, nil
	}

	engine, err := s.app.newEngine()
	if err != nil {
		ctx := issue.NewErrorContext().
			WithOperation("find a container engine").
			WithResource(container.EnginePodman).
			WithIssue(issue.ContainerEngineNotFoundId).
			Wrap(err)
		if errors.Is(err, container.ErrEngineNotAvailable) {
			ctx.WithSuggestion("Install podman and make sure it is on PATH")
		}
		return nil, ctx.BuildError()
	}
	if s.flags.dryRun {
		engine = container.NewDryRunEngine(engine, s.app.stdout)
	}

	s.engine = engine
	return engine, nil
}

func (s *session) upgrader() Upgrader {
	if s.flags.dryRun {
		return s.app.newUpgrader(s.app.stdout)
	}
	return s.app.newUpgrader(nil)
}
