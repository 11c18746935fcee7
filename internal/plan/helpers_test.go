// SPDX-License-Identifier: MPL-2.0

package plan

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, rel string) {
	t.Helper()

	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("FROM ${BASE_IMAGE}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}
