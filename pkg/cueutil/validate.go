// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// ValidateValue checks a decoded Go value (maps, slices and scalars as produced
// by a TOML or JSON decoder) against the named definition of a CUE schema.
//
// Schema compilation failures are reported as internal errors since the schema
// is embedded in the binary; everything else is formatted with FormatError.
// The unified value must be concrete.
func ValidateValue(schema, definition string, value any, opts ...Option) error {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(schema)
	if err := schemaValue.Err(); err != nil {
		return fmt.Errorf("internal error: failed to compile schema: %w", err)
	}

	def := schemaValue.LookupPath(cue.ParsePath(definition))
	if err := def.Err(); err != nil {
		return fmt.Errorf("internal error: schema definition %s: %w", definition, err)
	}

	userValue := ctx.Encode(value)
	if err := userValue.Err(); err != nil {
		return FormatError(err, o.filename)
	}

	unified := def.Unify(userValue)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return FormatError(err, o.filename)
	}

	return nil
}
