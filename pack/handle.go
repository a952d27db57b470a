// Package pack provides the process-wide, reference-counted cache of
// opened packfile handles, and the injectable collaborator used to walk a
// single pack's own index when building a multi-pack index.
package pack

import (
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// Handle is a refcounted, process-shared representation of an opened
// packfile, keyed by its canonical path. Callers never construct one
// directly; Get returns a shared instance.
type Handle struct {
	path     string // canonical
	refcount int
	entries  EntrySource
}

// Path returns the canonical path this handle was opened for.
func (h *Handle) Path() string { return h.path }

// Entries returns the injectable index-entry collaborator for this pack,
// opening it lazily on first use.
func (h *Handle) Entries() (EntrySource, error) {
	if h.entries != nil {
		return h.entries, nil
	}
	src, err := OpenEntrySource(h.path)
	if err != nil {
		return nil, err
	}
	h.entries = src
	return src, nil
}

// globMetaPattern matches a base name containing shell-glob metacharacters;
// CanonicalName rejects any such name, echoing the teacher's own use of
// doublestar for path-shape validation rather than directory traversal.
const globMetaPattern = "*[*?{}]*"

// CanonicalName normalizes path into the canonical form the handle cache
// keys on: relative paths are resolved against the working directory and
// `.`/`..` segments are cleaned, mirroring git_packfile__name's
// normalization ahead of git_mwindow_get_pack.
func CanonicalName(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("pack: canonicalize %q: %w", path, err)
	}
	clean := filepath.Clean(abs)
	if ok, _ := doublestar.Match(globMetaPattern, filepath.Base(clean)); ok {
		return "", fmt.Errorf("pack: %q looks like a glob pattern, not a path", path)
	}
	return clean, nil
}
