// SPDX-License-Identifier: MPL-2.0

package build

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/trellis-build/trls/internal/plan"
)

type (
	// Reporter receives progress messages meant for the user.
	Reporter interface {
		Info(msg string)
		Warning(msg string)
	}

	// Pipeline runs plan steps in order and stops at the first failure.
	Pipeline struct {
		executor StepExecutor
		reporter Reporter
	}

	nopReporter struct{}
)

func (nopReporter) Info(string)    {}
func (nopReporter) Warning(string) {}

// NewPipeline creates a pipeline. A nil reporter discards messages.
func NewPipeline(executor StepExecutor, reporter Reporter) *Pipeline {
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Pipeline{executor: executor, reporter: reporter}
}

// Run executes steps strictly in order. Images produced before a failing
// step are left in place.
func (p *Pipeline) Run(ctx context.Context, steps []plan.Step) error {
	if len(steps) == 0 {
		slog.Debug("empty build plan")
		return nil
	}

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("build interrupted before %s: %w", step.Tag, err)
		}

		p.reporter.Info(fmt.Sprintf("Building stage %d/%d: %s -> %s", i+1, len(steps), StageLabel(step), step.Tag))
		if err := p.executor.Execute(ctx, step); err != nil {
			slog.Debug("build step failed", "index", i+1, "tag", step.Tag, "error", err)
			return err
		}
	}

	return nil
}
