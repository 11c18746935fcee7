// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helper functions for tests that handle errors
// appropriately, reducing boilerplate and ensuring consistent error handling.
//
// Common helpers include directory operations (MustMkdirAll, WriteDefinition)
// and the process-wide ContainerSemaphore that throttles tests talking to a
// real podman.
package testutil
