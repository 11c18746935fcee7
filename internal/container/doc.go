// SPDX-License-Identifier: MPL-2.0

// Package container drives the podman CLI.
//
// The Engine interface covers what an image build pipeline needs: Build,
// Run, ImageExists, ListImages, RemoveImages and PruneImages. PodmanEngine
// implements it by embedding BaseCLIEngine, which owns argument construction
// and command execution through an injectable ExecCommandFunc.
//
// DryRunEngine decorates an Engine and prints the shell-quoted command line
// of every mutating operation instead of running it. Read-only queries
// (ImageExists, ListImages) still reach the wrapped engine.
package container
