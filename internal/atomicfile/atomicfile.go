// Package atomicfile writes a buffer to a path atomically: the caller
// never observes a partially written file, matching the "atomic
// write-buffer-to-path" collaborator named abstractly in the external
// interfaces the MIDX writer depends on.
package atomicfile

import (
	"os"

	"github.com/google/renameio"
)

// Write atomically replaces path's contents with data, creating it at the
// given permissions if it doesn't already exist.
func Write(path string, data []byte, perm uint32) error {
	return renameio.WriteFile(path, data, os.FileMode(perm))
}
