// SPDX-License-Identifier: MPL-2.0

package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// DefinitionPrefix is the literal file name prefix of stage definition files.
// The remainder of the name is the stage group.
const DefinitionPrefix = "Definition."

var (
	// ErrStageFileNotFound is the sentinel error wrapped by StageFileNotFoundError.
	ErrStageFileNotFound = errors.New("stage definition not found")

	// ErrAmbiguousStageFile is the sentinel error wrapped by AmbiguousStageFileError.
	ErrAmbiguousStageFile = errors.New("ambiguous stage definition")
)

type (
	// Locator finds the definition file of a stage group inside a source tree.
	//
	// The tree is walked once, on the first call to Locate, and the resulting
	// index is reused for the lifetime of the Locator. Create a new Locator to
	// observe files added afterwards.
	Locator struct {
		root string

		indexOnce   sync.Once
		index       map[string][]string
		diagnostics []Diagnostic
	}

	// StageFileNotFoundError is returned when no Definition.<group> exists
	// under the source root.
	StageFileNotFoundError struct {
		Group string
		Root  string
	}

	// AmbiguousStageFileError is returned when more than one Definition.<group>
	// exists under the source root. Paths lists every candidate, root-level
	// file first, the rest in lexical order.
	AmbiguousStageFileError struct {
		Group string
		Paths []string
	}
)

// Error implements the error interface.
func (e *StageFileNotFoundError) Error() string {
	if e.Group == "" {
		return fmt.Sprintf("empty stage group has no definition file under %s", e.Root)
	}
	return fmt.Sprintf("no %s found under %s", DefinitionFileName(e.Group), e.Root)
}

// Unwrap returns ErrStageFileNotFound so callers can use errors.Is for programmatic detection.
func (e *StageFileNotFoundError) Unwrap() error { return ErrStageFileNotFound }

// Error implements the error interface.
func (e *AmbiguousStageFileError) Error() string {
	return fmt.Sprintf("found %d files named %s: %s",
		len(e.Paths), DefinitionFileName(e.Group), strings.Join(e.Paths, ", "))
}

// Unwrap returns ErrAmbiguousStageFile so callers can use errors.Is for programmatic detection.
func (e *AmbiguousStageFileError) Unwrap() error { return ErrAmbiguousStageFile }

// DefinitionFileName returns the file name that defines a stage group.
func DefinitionFileName(group string) string {
	return DefinitionPrefix + group
}

// NewLocator creates a Locator rooted at the given source directory.
func NewLocator(root string) *Locator {
	return &Locator{root: filepath.Clean(root)}
}

// Locate returns the path of the single Definition.<group> file under the
// root, looking both directly in the root and in subdirectories at any depth.
func (l *Locator) Locate(group string) (string, error) {
	if group == "" {
		return "", &StageFileNotFoundError{Group: group, Root: l.root}
	}

	l.indexOnce.Do(l.buildIndex)

	matches := l.index[group]
	switch len(matches) {
	case 0:
		return "", &StageFileNotFoundError{Group: group, Root: l.root}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousStageFileError{Group: group, Paths: slices.Clone(matches)}
	}
}

// Diagnostics returns the non-fatal problems met while indexing the tree,
// such as unreadable directories. It is empty until the first Locate call.
// The locator does not log them; reporting is left to the caller.
func (l *Locator) Diagnostics() []Diagnostic {
	return slices.Clone(l.diagnostics)
}

// buildIndex walks the source tree and records every definition file by group.
// Symlinked directories are not followed.
func (l *Locator) buildIndex() {
	l.index = make(map[string][]string)

	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			l.warn("stage_dir_unreadable", path, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}

		group, ok := strings.CutPrefix(d.Name(), DefinitionPrefix)
		if !ok || group == "" {
			return nil
		}
		if !isRegularFile(path, d) {
			return nil
		}

		l.index[group] = append(l.index[group], path)
		return nil
	})
	if err != nil {
		l.warn("stage_walk_failed", l.root, err)
	}

	for group, paths := range l.index {
		slices.SortFunc(paths, l.compareCandidates)
		l.index[group] = paths
	}
}

// compareCandidates orders root-level definitions before nested ones, then
// lexically.
func (l *Locator) compareCandidates(a, b string) int {
	aRoot := filepath.Dir(a) == l.root
	bRoot := filepath.Dir(b) == l.root
	switch {
	case aRoot && !bRoot:
		return -1
	case bRoot && !aRoot:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

func (l *Locator) warn(code, path string, err error) {
	l.diagnostics = append(l.diagnostics, Diagnostic{
		Severity: SeverityWarning,
		Code:     code,
		Message:  "skipped while searching for stage definitions",
		Path:     path,
		Cause:    err,
	})
}

// isRegularFile accepts regular files and symlinks that resolve to one.
func isRegularFile(path string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
