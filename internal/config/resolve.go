// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/trellis-build/trls/internal/issue"
)

// Resolve layers overrides over file values over defaults and converts the
// result into a BuildConfig.
//
// Resolution has side effects: configured cache directories are created, and
// a hooks directory that does not exist is dropped.
func Resolve(defaults, file, overrides Layer) (*BuildConfig, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if len(file) > 0 {
		if err := v.MergeConfigMap(file.nested()); err != nil {
			return nil, fmt.Errorf("failed to merge config file values: %w", err)
		}
	}
	for key, value := range overrides {
		v.Set(key, value)
	}

	cfg := &BuildConfig{}
	for _, opt := range options {
		raw := v.Get(opt.Key)
		if raw == nil {
			raw = opt.Default
		}
		if err := opt.apply(cfg, opt.Key, raw); err != nil {
			return nil, err
		}
	}

	if err := cfg.prepareDirectories(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// prepareDirectories creates the cache directories and drops a missing
// hooks directory.
func (c *BuildConfig) prepareDirectories() error {
	for _, dir := range []*string{&c.PacmanCache, &c.AURCache} {
		if *dir == "" {
			continue
		}
		if err := os.MkdirAll(*dir, 0o755); err != nil {
			ctx := issue.NewErrorContext().
				WithOperation("create cache directory").
				WithResource(*dir).
				WithSuggestion("Set the cache path to an empty string to disable it")
			if errors.Is(err, fs.ErrPermission) {
				ctx.WithSuggestion("Run trls as root").WithIssue(issue.PermissionDeniedId)
			}
			return ctx.Wrap(err).BuildError()
		}
		// The directory may not have existed when the path was canonicalized.
		resolved, err := canonicalPath(*dir)
		if err != nil {
			return err
		}
		*dir = resolved
	}

	if c.HooksDir != "" {
		if info, err := os.Stat(c.HooksDir); err != nil || !info.IsDir() {
			slog.Debug("hooks directory not found, hooks disabled", "path", c.HooksDir)
			c.HooksDir = ""
		}
	}

	return nil
}

// canonicalPath makes p absolute and resolves symlinks when p exists.
// The empty string is returned unchanged.
func canonicalPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}

	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(abs)
	switch {
	case err == nil:
		return resolved, nil
	case errors.Is(err, fs.ErrNotExist):
		return abs, nil
	default:
		return "", err
	}
}
