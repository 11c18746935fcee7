// SPDX-License-Identifier: MPL-2.0

// Package config resolves the effective build configuration of one trls run.
//
// Values come from three layers, highest precedence first: command-line
// flags, the TOML configuration file, and built-in defaults. Every option is
// declared once in a static table that maps its dotted key (for example
// "build.rootfs_stages") to the command-line flag and a typed setter; the CLI
// registers its flags from that table.
//
// The file is validated against an embedded CUE schema before its values are
// layered, so unknown sections and keys are rejected with their path.
package config
