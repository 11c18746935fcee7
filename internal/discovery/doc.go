// SPDX-License-Identifier: MPL-2.0

// Package discovery locates stage definition files in a source tree.
//
// A stage group "gpu" is defined by a file literally named Definition.gpu,
// either directly under the source root or in any subdirectory. Exactly one
// such file must exist; a missing or duplicated definition is an error rather
// than something to guess around.
package discovery
