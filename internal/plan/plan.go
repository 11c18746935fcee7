// SPDX-License-Identifier: MPL-2.0

// Package plan turns an ordered stage list into a chain of image builds.
package plan

import (
	"errors"
	"fmt"

	"github.com/trellis-build/trls/internal/stage"
)

const (
	// KindBuilder is the chain producing the builder image.
	KindBuilder Kind = "builder"
	// KindRootfs is the chain producing the root filesystem image.
	KindRootfs Kind = "rootfs"

	// IntermediateTagPrefix starts every tag trls generates for a non-final step.
	IntermediateTagPrefix = "trellis-"
)

// ErrInvalidKind is the sentinel error wrapped by InvalidKindError.
var ErrInvalidKind = errors.New("invalid build kind")

type (
	// Kind selects which image chain a plan builds.
	Kind string

	// InvalidKindError is returned when a Kind is not builder or rootfs.
	InvalidKindError struct {
		Value Kind
	}

	// Step is one image build in a plan.
	Step struct {
		Kind Kind
		// Tag is the image tag the step produces.
		Tag string
		// DefinitionPath is the Definition.<group> file to build.
		DefinitionPath string
		// Target is the build stage selected inside the definition file.
		Target string
		// BaseImage is the previous step's tag, or empty for the first step.
		BaseImage string
		// IsFinal marks the last step, whose tag is the requested final tag.
		IsFinal bool
	}

	// Locator resolves a stage group to its definition file.
	Locator interface {
		Locate(group string) (string, error)
	}

	// Planner builds plans against a source tree.
	Planner struct {
		locator Locator
	}
)

// Error implements the error interface.
func (e *InvalidKindError) Error() string {
	return fmt.Sprintf("invalid build kind %q (valid: builder, rootfs)", e.Value)
}

// Unwrap returns ErrInvalidKind so callers can use errors.Is for programmatic detection.
func (e *InvalidKindError) Unwrap() error { return ErrInvalidKind }

// Validate returns an error if the Kind is not one of the defined kinds.
func (k Kind) Validate() error {
	switch k {
	case KindBuilder, KindRootfs:
		return nil
	default:
		return &InvalidKindError{Value: k}
	}
}

// String returns the string representation of the Kind.
func (k Kind) String() string { return string(k) }

// HasBase reports whether the step builds on top of a previous step.
func (s Step) HasBase() bool { return s.BaseImage != "" }

// NewPlanner creates a Planner that resolves definitions through locator.
func NewPlanner(locator Locator) *Planner {
	return &Planner{locator: locator}
}

// IntermediateTag returns the tag of a non-final step:
// "trellis-<kind>-<group>-<stage>" for multi-stage definitions and
// "trellis-<kind>-<stage>" otherwise.
func IntermediateTag(kind Kind, spec stage.Spec) string {
	if spec.IsMultiStage() {
		return IntermediateTagPrefix + string(kind) + "-" + spec.Group + "-" + spec.Stage
	}
	return IntermediateTagPrefix + string(kind) + "-" + spec.Stage
}

// Plan resolves every spec to its definition file and chains the steps so
// each one builds on the image of the previous. The last step is tagged
// finalTag. An empty stage list yields an empty plan.
//
// Planning fails on the first spec whose definition cannot be located, so no
// build starts for a list that references a missing or ambiguous group.
func (p *Planner) Plan(kind Kind, finalTag string, specs []stage.Spec) ([]Step, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}

	steps := make([]Step, 0, len(specs))
	lastTag := ""
	for i, spec := range specs {
		path, err := p.locator.Locate(spec.Group)
		if err != nil {
			return nil, fmt.Errorf("%s stage %d (%s): %w", kind, i+1, spec, err)
		}

		isFinal := i == len(specs)-1
		tag := finalTag
		if !isFinal {
			tag = IntermediateTag(kind, spec)
		}

		steps = append(steps, Step{
			Kind:           kind,
			Tag:            tag,
			DefinitionPath: path,
			Target:         spec.Stage,
			BaseImage:      lastTag,
			IsFinal:        isFinal,
		})
		lastTag = tag
	}

	return steps, nil
}

// Tags returns the tags produced by a plan, in build order.
func Tags(steps []Step) []string {
	tags := make([]string, len(steps))
	for i, s := range steps {
		tags[i] = s.Tag
	}
	return tags
}
