// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/trellis-build/trls/internal/plan"
	"github.com/trellis-build/trls/internal/stage"
)

const (
	// DefaultBuilderTag is the final tag of the builder chain.
	DefaultBuilderTag = "trellis-builder"
	// DefaultRootfsTag is the final tag of the rootfs chain.
	DefaultRootfsTag = "trellis-rootfs"
	// DefaultRootfsBase is the base image of the first rootfs stage.
	DefaultRootfsBase = "scratch"
	// DefaultPacmanCache is the host pacman package cache.
	DefaultPacmanCache = "/var/cache/pacman/pkg"
	// DefaultAURCache is the host cache of built AUR packages.
	DefaultAURCache = "/var/cache/trellis/aur"
	// DefaultSrcDir is the root of the stage definition tree.
	DefaultSrcDir = "/var/lib/trellis/src"
	// DefaultHooksDir holds build hooks; it is ignored when absent.
	DefaultHooksDir = "/etc/trellis/hooks.d"
)

// ErrInvalidConfigValue is the sentinel error wrapped by InvalidConfigValueError.
var ErrInvalidConfigValue = errors.New("invalid config value")

type (
	// BuildConfig is the effective configuration of one invocation.
	// Paths are absolute with symlinks resolved; an empty cache or hooks path
	// means the feature is disabled.
	BuildConfig struct {
		BuilderTag    string
		RootfsTag     string
		RootfsBase    string
		BuilderStages []stage.Spec
		RootfsStages  []stage.Spec
		PacmanCache   string
		AURCache      string
		SrcDir        string
		HooksDir      string
		BuildCache    bool
		AutoClean     bool
		// ExtraContexts are "name=path" build contexts passed to rootfs builds.
		ExtraContexts []string
		// ExtraMounts are host paths bind-mounted at the same path in rootfs builds.
		ExtraMounts []string
	}

	// InvalidConfigValueError is returned when a configuration value cannot be
	// interpreted for its option.
	InvalidConfigValueError struct {
		Key    string
		Value  string
		Reason string
	}
)

// Error implements the error interface.
func (e *InvalidConfigValueError) Error() string {
	return fmt.Sprintf("invalid value %q for %s: %s", e.Value, e.Key, e.Reason)
}

// Unwrap returns ErrInvalidConfigValue so callers can use errors.Is for programmatic detection.
func (e *InvalidConfigValueError) Unwrap() error { return ErrInvalidConfigValue }

// Chain returns the final tag and stage list of the given image chain.
func (c *BuildConfig) Chain(kind plan.Kind) (finalTag string, specs []stage.Spec) {
	if kind == plan.KindBuilder {
		return c.BuilderTag, c.BuilderStages
	}
	return c.RootfsTag, c.RootfsStages
}

// FirstBaseImage is the image the first stage of a chain builds on.
// Builder chains always start from scratch.
func (c *BuildConfig) FirstBaseImage(kind plan.Kind) string {
	if kind == plan.KindBuilder {
		return DefaultRootfsBase
	}
	return c.RootfsBase
}

// ParseBool interprets a boolean token. Accepted values are exactly
// 0, false, no (false) and 1, true, yes (true); matching is case-sensitive.
func ParseBool(key, value string) (bool, error) {
	switch value {
	case "1", "true", "yes":
		return true, nil
	case "0", "false", "no":
		return false, nil
	default:
		return false, &InvalidConfigValueError{
			Key:    key,
			Value:  value,
			Reason: "expected one of 0, 1, true, false, yes, no",
		}
	}
}

// FormatBool renders a boolean in the token form accepted by ParseBool.
func FormatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// SplitList splits a comma-separated list. The empty string is an empty list;
// empty segments inside a non-empty list are preserved.
func SplitList(value string) []string {
	if value == "" {
		return []string{}
	}
	return strings.Split(value, ",")
}
