// SPDX-License-Identifier: MPL-2.0

// Package cueutil validates decoded configuration documents against embedded
// CUE schemas.
//
// trls reads its configuration as TOML, so the document is already a Go value
// by the time it reaches this package. Validation encodes that value into CUE,
// unifies it with a schema definition and reports failures with JSON-path
// prefixes:
//
//	//go:embed config_schema.cue
//	var schema string
//
//	err := cueutil.ValidateValue(schema, "#Config", doc,
//	    cueutil.WithFilename("/etc/trellis/trellis.toml"))
package cueutil
