// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"slices"

	"github.com/pelletier/go-toml/v2"

	"github.com/trellis-build/trls/internal/issue"
	"github.com/trellis-build/trls/pkg/cueutil"
)

const (
	// DefaultConfigPath is read when neither --config nor TRELLIS_CONFIG is set.
	DefaultConfigPath = "/etc/trellis/trellis.toml"
	// ConfigPathEnv overrides the configuration file location.
	ConfigPathEnv = "TRELLIS_CONFIG"
)

//go:embed config_schema.cue
var configSchema string

type (
	// LoadOptions defines explicit configuration loading inputs.
	LoadOptions struct {
		// ConfigFilePath is the --config flag value.
		ConfigFilePath string
		// EnvConfigPath is the TRELLIS_CONFIG environment value.
		EnvConfigPath string
		// Overrides are the values given on the command line.
		Overrides Layer
	}

	// Loaded is a resolved configuration together with its origin.
	Loaded struct {
		Config *BuildConfig
		// Path is the configuration file consulted.
		Path string
		// FromFile is false when the default file did not exist.
		FromFile bool
	}

	// Provider loads configuration from explicit options.
	Provider interface {
		Load(ctx context.Context, opts LoadOptions) (*Loaded, error)
	}

	fileProvider struct{}
)

// NewProvider creates a provider that reads the TOML configuration file.
func NewProvider() Provider {
	return &fileProvider{}
}

// Load reads the configuration file, if any, and resolves it against the
// defaults and the command-line overrides.
func (p *fileProvider) Load(ctx context.Context, opts LoadOptions) (*Loaded, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	path, explicit := ConfigFilePath(opts.ConfigFilePath, opts.EnvConfigPath)

	file, err := ReadFile(path)
	fromFile := true
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		file, fromFile = nil, false
	default:
		return nil, err
	}

	cfg, err := Resolve(Defaults(), file, opts.Overrides)
	if err != nil {
		return nil, err
	}

	return &Loaded{Config: cfg, Path: path, FromFile: fromFile}, nil
}

// ConfigFilePath picks the configuration file: the flag value, then the
// environment value, then DefaultConfigPath. explicit reports whether the
// user asked for the file, in which case it must exist.
func ConfigFilePath(flagPath, envPath string) (path string, explicit bool) {
	switch {
	case flagPath != "":
		return flagPath, true
	case envPath != "":
		return envPath, true
	default:
		return DefaultConfigPath, false
	}
}

// ReadFile reads, validates and flattens a TOML configuration file.
// A missing file yields an error wrapping fs.ErrNotExist.
func ReadFile(path string) (Layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestions(
					"Verify the file path is correct",
					"Unset "+ConfigPathEnv+" to use "+DefaultConfigPath,
				).
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(err).
				BuildError()
		}
		return nil, loadError(path, err)
	}

	return ParseFile(path, data)
}

// ParseFile decodes TOML configuration data; path is used in error messages.
func ParseFile(path string, data []byte) (Layer, error) {
	if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, path); err != nil {
		return nil, loadError(path, err)
	}

	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			err = fmt.Errorf("%s:%d:%d: %w", path, row, col, err)
		}
		return nil, loadError(path, err)
	}

	if err := cueutil.ValidateValue(configSchema, "#Config", doc, cueutil.WithFilename(path)); err != nil {
		return nil, loadError(path, err)
	}

	return flatten(doc), nil
}

func loadError(path string, err error) error {
	return issue.NewErrorContext().
		WithOperation("load configuration").
		WithResource(path).
		WithSuggestions(
			"Check that the file contains valid TOML",
			"Only [build] and [environment] keys are recognized, see 'trls config show'",
		).
		WithIssue(issue.ConfigLoadFailedId).
		Wrap(err).
		BuildError()
}

// flatten turns {section: {key: value}} into dotted keys.
func flatten(doc map[string]any) Layer {
	l := make(Layer)
	for section, value := range doc {
		table, ok := value.(map[string]any)
		if !ok {
			continue
		}
		for key, v := range table {
			l[section+"."+key] = v
		}
	}
	return l
}

// Keys returns the layer keys in sorted order.
func (l Layer) Keys() []string {
	return slices.Sorted(maps.Keys(l))
}
