// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"

	"github.com/trellis-build/trls/internal/stage"
)

type (
	fileDocument struct {
		Build       buildSection       `toml:"build"`
		Environment environmentSection `toml:"environment"`
	}

	buildSection struct {
		BuilderStages    string   `toml:"builder_stages"`
		RootfsStages     string   `toml:"rootfs_stages"`
		BuilderTag       string   `toml:"builder_tag"`
		RootfsTag        string   `toml:"rootfs_tag"`
		RootfsBase       string   `toml:"rootfs_base"`
		PodmanBuildCache bool     `toml:"podman_build_cache"`
		AutoClean        bool     `toml:"auto_clean"`
		ExtraContexts    []string `toml:"extra_contexts"`
		ExtraMounts      []string `toml:"extra_mounts"`
	}

	environmentSection struct {
		PacmanCache string `toml:"pacman_cache"`
		AURCache    string `toml:"aur_cache"`
		SrcDir      string `toml:"src_dir"`
		HooksDir    string `toml:"hooks_dir"`
	}
)

// GenerateTOML renders cfg as a configuration file that resolves back to the
// same values.
func GenerateTOML(cfg *BuildConfig) (string, error) {
	doc := fileDocument{
		Build: buildSection{
			BuilderStages:    stage.Join(cfg.BuilderStages),
			RootfsStages:     stage.Join(cfg.RootfsStages),
			BuilderTag:       cfg.BuilderTag,
			RootfsTag:        cfg.RootfsTag,
			RootfsBase:       cfg.RootfsBase,
			PodmanBuildCache: cfg.BuildCache,
			AutoClean:        cfg.AutoClean,
			ExtraContexts:    nonNil(cfg.ExtraContexts),
			ExtraMounts:      nonNil(cfg.ExtraMounts),
		},
		Environment: environmentSection{
			PacmanCache: cfg.PacmanCache,
			AURCache:    cfg.AURCache,
			SrcDir:      cfg.SrcDir,
			HooksDir:    cfg.HooksDir,
		},
	}

	out, err := toml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to render configuration: %w", err)
	}
	return string(out), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
