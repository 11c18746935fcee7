// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// DefinitionPrefix mirrors the stage definition file name prefix.
const DefinitionPrefix = "Definition."

// MustMkdirAll creates a directory along with any necessary parents.
// The test fails immediately if the operation fails.
func MustMkdirAll(t testing.TB, path string, perm os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(path, perm); err != nil {
		t.Fatalf("failed to create directory %s: %v", path, err)
	}
}

// WriteDefinition writes Definition.<group> under root/dir and returns its path.
// An empty dir places the file directly under root.
func WriteDefinition(t testing.TB, root, dir, group, content string) string {
	t.Helper()
	parent := filepath.Join(root, dir)
	MustMkdirAll(t, parent, 0o755)
	path := filepath.Join(parent, DefinitionPrefix+group)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}
