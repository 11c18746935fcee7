// SPDX-License-Identifier: MPL-2.0

package build

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/trellis-build/trls/internal/config"
	"github.com/trellis-build/trls/internal/container"
	"github.com/trellis-build/trls/internal/plan"
)

const (
	// CleanFull removes every image trls generated, final tags included.
	CleanFull CleanMode = iota
	// CleanAuto removes intermediate images and keeps the final tags.
	CleanAuto
)

type (
	// CleanMode selects which trellis images a Cleaner removes.
	CleanMode int

	// Cleaner removes images produced by build plans.
	Cleaner struct {
		engine   container.Engine
		finals   []string
		reporter Reporter
	}
)

// String returns the mode name.
func (m CleanMode) String() string {
	if m == CleanAuto {
		return "auto"
	}
	return "full"
}

// NewCleaner creates a Cleaner recognizing the final tags of cfg.
// A nil reporter discards messages.
func NewCleaner(engine container.Engine, cfg *config.BuildConfig, reporter Reporter) *Cleaner {
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Cleaner{
		engine:   engine,
		finals:   []string{qualifiedImage(cfg.BuilderTag), qualifiedImage(cfg.RootfsTag)},
		reporter: reporter,
	}
}

// Clean removes the trellis images selected by mode and returns how many
// were removed. A failed batch removal falls back to one image at a time;
// images that still cannot be removed are reported and skipped. A full
// clean finishes by pruning dangling images.
func (c *Cleaner) Clean(ctx context.Context, mode CleanMode) (int, error) {
	images, err := c.engine.ListImages(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list images: %w", err)
	}

	candidates := c.Candidates(images, mode)
	slog.Debug("clean candidates", "mode", mode, "count", len(candidates))

	removed := 0
	if len(candidates) > 0 {
		kind := "trellis-generated"
		if mode == CleanAuto {
			kind = "intermediate trellis-generated"
		}
		c.reporter.Info(fmt.Sprintf("Found %d %s images to remove", len(candidates), kind))
		removed = c.remove(ctx, candidates)
	}

	if mode == CleanFull {
		if err := c.engine.PruneImages(ctx); err != nil {
			return removed, fmt.Errorf("failed to prune dangling images: %w", err)
		}
	}

	return removed, nil
}

// Candidates filters images ("repository:tag") down to the trellis images
// selected by mode, preserving order.
func (c *Cleaner) Candidates(images []string, mode CleanMode) []string {
	var out []string
	for _, image := range images {
		final := c.isFinal(image)
		switch {
		case final && mode == CleanFull:
			out = append(out, image)
		case !final && isIntermediate(image):
			out = append(out, image)
		}
	}
	return out
}

func (c *Cleaner) remove(ctx context.Context, images []string) int {
	if len(images) > 1 {
		err := c.engine.RemoveImages(ctx, images, true)
		if err == nil {
			return len(images)
		}
		c.reporter.Warning(fmt.Sprintf("Batch removal failed, removing images one at a time: %v", err))
	}

	removed := 0
	for _, image := range images {
		if err := c.engine.RemoveImages(ctx, []string{image}, true); err != nil {
			c.reporter.Warning(fmt.Sprintf("Failed to remove image %s: %v", image, err))
			continue
		}
		c.reporter.Info("Removed image: " + image)
		removed++
	}
	return removed
}

func (c *Cleaner) isFinal(image string) bool {
	return slices.Contains(c.finals, image)
}

// isIntermediate reports whether image carries a tag generated for a
// non-final plan step.
func isIntermediate(image string) bool {
	for _, kind := range []plan.Kind{plan.KindBuilder, plan.KindRootfs} {
		if strings.HasPrefix(image, container.LocalhostPrefix+plan.IntermediateTagPrefix+string(kind)+"-") {
			return true
		}
	}
	return false
}

// qualifiedImage turns a configured tag into the "localhost/name:tag" form
// podman lists.
func qualifiedImage(tag string) string {
	image := container.LocalImage(tag)
	if !strings.Contains(image[strings.LastIndex(image, "/")+1:], ":") {
		image += ":latest"
	}
	return image
}
