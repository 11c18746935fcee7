// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"strings"

	"github.com/trellis-build/trls/internal/stage"
)

// Option keys. The section prefix matches the TOML table the key lives in.
const (
	KeyBuilderStages    = "build.builder_stages"
	KeyRootfsStages     = "build.rootfs_stages"
	KeyBuilderTag       = "build.builder_tag"
	KeyRootfsTag        = "build.rootfs_tag"
	KeyRootfsBase       = "build.rootfs_base"
	KeyPodmanBuildCache = "build.podman_build_cache"
	KeyAutoClean        = "build.auto_clean"
	KeyExtraContexts    = "build.extra_contexts"
	KeyExtraMounts      = "build.extra_mounts"
	KeyPacmanCache      = "environment.pacman_cache"
	KeyAURCache         = "environment.aur_cache"
	KeySrcDir           = "environment.src_dir"
	KeyHooksDir         = "environment.hooks_dir"
)

type (
	// Layer maps dotted option keys to raw values. Raw values are strings,
	// booleans, integers, or lists of those, as produced by flags or TOML.
	Layer map[string]any

	// Option declares one configurable value.
	Option struct {
		// Key is the dotted configuration key, e.g. "build.rootfs_stages".
		Key string
		// Flag is the long command-line flag name without dashes.
		Flag string
		// Usage is the flag help text.
		Usage string
		// Default is the built-in value.
		Default string

		apply setter
	}

	setter func(cfg *BuildConfig, key string, raw any) error
)

var options = []Option{
	{
		Key: KeyBuilderStages, Flag: "builder-stages", Default: "",
		Usage: "comma-separated builder stages (group or group:stage)",
		apply: stagesField(func(c *BuildConfig) *[]stage.Spec { return &c.BuilderStages }),
	},
	{
		Key: KeyRootfsStages, Flag: "rootfs-stages", Default: "",
		Usage: "comma-separated rootfs stages (group or group:stage)",
		apply: stagesField(func(c *BuildConfig) *[]stage.Spec { return &c.RootfsStages }),
	},
	{
		Key: KeyBuilderTag, Flag: "builder-tag", Default: DefaultBuilderTag,
		Usage: "tag of the final builder image",
		apply: requiredStringField(func(c *BuildConfig) *string { return &c.BuilderTag }),
	},
	{
		Key: KeyRootfsTag, Flag: "rootfs-tag", Default: DefaultRootfsTag,
		Usage: "tag of the final rootfs image",
		apply: requiredStringField(func(c *BuildConfig) *string { return &c.RootfsTag }),
	},
	{
		Key: KeyRootfsBase, Flag: "rootfs-base", Default: DefaultRootfsBase,
		Usage: "base image of the first rootfs stage",
		apply: requiredStringField(func(c *BuildConfig) *string { return &c.RootfsBase }),
	},
	{
		Key: KeyPodmanBuildCache, Flag: "podman-build-cache", Default: "false",
		Usage: "use the podman layer cache (0/1, true/false, yes/no)",
		apply: boolField(func(c *BuildConfig) *bool { return &c.BuildCache }),
	},
	{
		Key: KeyAutoClean, Flag: "auto-clean", Default: "false",
		Usage: "remove intermediate images after a successful build (0/1, true/false, yes/no)",
		apply: boolField(func(c *BuildConfig) *bool { return &c.AutoClean }),
	},
	{
		Key: KeyExtraContexts, Flag: "extra-contexts", Default: "",
		Usage: "comma-separated name=path build contexts for rootfs builds",
		apply: contextsField,
	},
	{
		Key: KeyExtraMounts, Flag: "extra-mounts", Default: "",
		Usage: "comma-separated host paths mounted into rootfs builds",
		apply: mountsField,
	},
	{
		Key: KeyPacmanCache, Flag: "pacman-cache", Default: DefaultPacmanCache,
		Usage: "host pacman package cache (empty disables)",
		apply: pathField(func(c *BuildConfig) *string { return &c.PacmanCache }),
	},
	{
		Key: KeyAURCache, Flag: "aur-cache", Default: DefaultAURCache,
		Usage: "host AUR package cache (empty disables)",
		apply: pathField(func(c *BuildConfig) *string { return &c.AURCache }),
	},
	{
		Key: KeySrcDir, Flag: "src-dir", Default: DefaultSrcDir,
		Usage: "directory containing the Definition.<group> files",
		apply: requiredPathField(func(c *BuildConfig) *string { return &c.SrcDir }),
	},
	{
		Key: KeyHooksDir, Flag: "hooks-dir", Default: DefaultHooksDir,
		Usage: "hooks directory mounted read-only into rootfs builds (ignored if missing)",
		apply: pathField(func(c *BuildConfig) *string { return &c.HooksDir }),
	},
}

// Options returns the option table in declaration order.
func Options() []Option {
	out := make([]Option, len(options))
	copy(out, options)
	return out
}

// LookupFlag returns the option registered under a command-line flag name.
func LookupFlag(flag string) (Option, bool) {
	for _, opt := range options {
		if opt.Flag == flag {
			return opt, true
		}
	}
	return Option{}, false
}

// Defaults returns the built-in layer.
func Defaults() Layer {
	l := make(Layer, len(options))
	for _, opt := range options {
		l[opt.Key] = opt.Default
	}
	return l
}

// nested converts dotted keys into the nested maps viper merges.
func (l Layer) nested() map[string]any {
	out := make(map[string]any)
	for key, value := range l {
		section, name, ok := strings.Cut(key, ".")
		if !ok {
			out[key] = value
			continue
		}
		table, _ := out[section].(map[string]any)
		if table == nil {
			table = make(map[string]any)
			out[section] = table
		}
		table[name] = value
	}
	return out
}

// --- setters ---

func rawString(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case bool:
		return FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

func rawList(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return append([]string{}, v...)
	case []any:
		out := make([]string, len(v))
		for i, item := range v {
			out[i] = rawString(item)
		}
		return out
	default:
		return SplitList(rawString(raw))
	}
}

func requiredStringField(field func(*BuildConfig) *string) setter {
	return func(cfg *BuildConfig, key string, raw any) error {
		s := rawString(raw)
		if s == "" {
			return &InvalidConfigValueError{Key: key, Value: s, Reason: "must not be empty"}
		}
		*field(cfg) = s
		return nil
	}
}

func boolField(field func(*BuildConfig) *bool) setter {
	return func(cfg *BuildConfig, key string, raw any) error {
		b, err := ParseBool(key, rawString(raw))
		if err != nil {
			return err
		}
		*field(cfg) = b
		return nil
	}
}

func stagesField(field func(*BuildConfig) *[]stage.Spec) setter {
	return func(cfg *BuildConfig, _ string, raw any) error {
		specs, err := stage.Parse(strings.Join(rawList(raw), stage.ListSeparator))
		if err != nil {
			return err
		}
		*field(cfg) = specs
		return nil
	}
}

func pathField(field func(*BuildConfig) *string) setter {
	return func(cfg *BuildConfig, key string, raw any) error {
		p, err := canonicalPath(rawString(raw))
		if err != nil {
			return &InvalidConfigValueError{Key: key, Value: rawString(raw), Reason: err.Error()}
		}
		*field(cfg) = p
		return nil
	}
}

func requiredPathField(field func(*BuildConfig) *string) setter {
	optional := pathField(field)
	return func(cfg *BuildConfig, key string, raw any) error {
		if rawString(raw) == "" {
			return &InvalidConfigValueError{Key: key, Value: "", Reason: "must not be empty"}
		}
		return optional(cfg, key, raw)
	}
}

func contextsField(cfg *BuildConfig, key string, raw any) error {
	contexts := rawList(raw)
	for _, c := range contexts {
		if c == "" {
			continue
		}
		if name, _, ok := strings.Cut(c, "="); !ok || name == "" {
			return &InvalidConfigValueError{Key: key, Value: c, Reason: "expected name=path"}
		}
	}
	cfg.ExtraContexts = contexts
	return nil
}

func mountsField(cfg *BuildConfig, key string, raw any) error {
	mounts := rawList(raw)
	for i, m := range mounts {
		p, err := canonicalPath(m)
		if err != nil {
			return &InvalidConfigValueError{Key: key, Value: m, Reason: err.Error()}
		}
		mounts[i] = p
	}
	cfg.ExtraMounts = mounts
	return nil
}
