// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the trls command-line interface.
//
// Every subcommand resolves the configuration once (defaults, then the TOML
// file, then flags), plans the requested stage chain, and drives podman
// through the container engine abstraction. The build subcommands run the
// plan strictly in order and stop at the first failing stage.
package cmd
