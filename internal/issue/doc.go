// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with user-friendly messages.
//
// ActionableError carries the failed operation, the resource involved and
// remediation hints. The Markdown catalog behind Get is rendered with glamour
// when trls runs in verbose mode.
package issue
