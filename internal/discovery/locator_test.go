// SPDX-License-Identifier: MPL-2.0

package discovery

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"testing"
)

func writeDefinition(t *testing.T, root string, rel ...string) string {
	t.Helper()

	path := filepath.Join(append([]string{root}, rel...)...)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte("FROM ${BASE_IMAGE}\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLocate_FindsDefinitionAtAnyDepth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rel  []string
	}{
		{name: "root", rel: []string{"Definition.gpu"}},
		{name: "group directory", rel: []string{"gpu", "Definition.gpu"}},
		{name: "nested directory", rel: []string{"features", "gpu", "Definition.gpu"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			want := writeDefinition(t, root, tt.rel...)
			writeDefinition(t, root, "base", "Definition.base")

			got, err := NewLocator(root).Locate("gpu")
			if err != nil {
				t.Fatalf("Locate() unexpected error: %v", err)
			}
			if got != want {
				t.Errorf("Locate() = %q, want %q", got, want)
			}
		})
	}
}

func TestLocate_NotFound(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeDefinition(t, root, "Definition.base")
	// A directory with the right name is not a definition.
	if err := os.MkdirAll(filepath.Join(root, "Definition.gpu"), 0o755); err != nil {
		t.Fatal(err)
	}

	for _, group := range []string{"gpu", "bas", ""} {
		_, err := NewLocator(root).Locate(group)
		if !errors.Is(err, ErrStageFileNotFound) {
			t.Errorf("Locate(%q) error = %v, want ErrStageFileNotFound", group, err)
			continue
		}
		var nf *StageFileNotFoundError
		if !errors.As(err, &nf) || nf.Group != group || nf.Root != root {
			t.Errorf("Locate(%q) error = %#v", group, err)
		}
	}
}

func TestLocate_Ambiguous(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rels [][]string
	}{
		{
			name: "root and subdirectory",
			rels: [][]string{{"Definition.gpu"}, {"gpu", "Definition.gpu"}},
		},
		{
			name: "two subdirectories",
			rels: [][]string{{"a", "Definition.gpu"}, {"b", "c", "Definition.gpu"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			var want []string
			for _, rel := range tt.rels {
				want = append(want, writeDefinition(t, root, rel...))
			}

			_, err := NewLocator(root).Locate("gpu")
			if !errors.Is(err, ErrAmbiguousStageFile) {
				t.Fatalf("Locate() error = %v, want ErrAmbiguousStageFile", err)
			}
			var amb *AmbiguousStageFileError
			if !errors.As(err, &amb) {
				t.Fatalf("error %T is not *AmbiguousStageFileError", err)
			}
			if !slices.Equal(amb.Paths, want) {
				t.Errorf("Paths = %v, want %v", amb.Paths, want)
			}
		})
	}
}

func TestLocate_RootLevelListedFirst(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	nested := writeDefinition(t, root, "AAA", "Definition.gpu")
	top := writeDefinition(t, root, "Definition.gpu")

	_, err := NewLocator(root).Locate("gpu")
	var amb *AmbiguousStageFileError
	if !errors.As(err, &amb) {
		t.Fatalf("expected AmbiguousStageFileError, got %v", err)
	}
	if !slices.Equal(amb.Paths, []string{top, nested}) {
		t.Errorf("Paths = %v, want root-level first", amb.Paths)
	}
}

func TestLocate_IndexIsReused(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeDefinition(t, root, "Definition.base")
	loc := NewLocator(root)

	if _, err := loc.Locate("base"); err != nil {
		t.Fatalf("Locate() unexpected error: %v", err)
	}
	writeDefinition(t, root, "late", "Definition.late")
	if _, err := loc.Locate("late"); !errors.Is(err, ErrStageFileNotFound) {
		t.Errorf("files added after indexing should not be visible, got %v", err)
	}
	if _, err := NewLocator(root).Locate("late"); err != nil {
		t.Errorf("a fresh locator should see the new file: %v", err)
	}
}

func TestLocate_SymlinkedDirectoriesAreNotFollowed(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	outside := t.TempDir()
	writeDefinition(t, outside, "Definition.gpu")
	if err := os.Symlink(outside, filepath.Join(root, "linked")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	if _, err := NewLocator(root).Locate("gpu"); !errors.Is(err, ErrStageFileNotFound) {
		t.Errorf("Locate() error = %v, want ErrStageFileNotFound", err)
	}
}

func TestLocate_UnreadableDirectoryIsSkipped(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}

	root := t.TempDir()
	want := writeDefinition(t, root, "ok", "Definition.base")
	locked := filepath.Join(root, "locked")
	writeDefinition(t, locked, "Definition.hidden")
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	loc := NewLocator(root)
	got, err := loc.Locate("base")
	if err != nil || got != want {
		t.Fatalf("Locate() = %q, %v; want %q", got, err, want)
	}
	diags := loc.Diagnostics()
	if len(diags) != 1 || diags[0].Path != locked || diags[0].Severity != SeverityWarning {
		t.Errorf("Diagnostics() = %v, want one warning for %s", diags, locked)
	}
}

func TestLocate_MissingRoot(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "absent")
	loc := NewLocator(root)
	if _, err := loc.Locate("base"); !errors.Is(err, ErrStageFileNotFound) {
		t.Errorf("Locate() error = %v, want ErrStageFileNotFound", err)
	}
	if len(loc.Diagnostics()) == 0 {
		t.Error("missing root should produce a diagnostic")
	}
}
