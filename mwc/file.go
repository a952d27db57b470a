package mwc

import "os"

// WindowedFile is a pack file descriptor together with the list of
// windows currently mapped over it. It is registered in a Cache's global
// list while open; deregistering it unmaps every window and invalidates
// the descriptor.
type WindowedFile struct {
	path string
	f    *os.File
	size int64

	windows []*window
	valid   bool
}

// OpenWindowedFile opens path for reading and stats it, without mapping
// anything yet; mappings are created lazily by Cache.Open.
func OpenWindowedFile(path string) (*WindowedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &WindowedFile{path: path, f: f, size: info.Size(), valid: true}, nil
}

// Path is the file's on-disk path.
func (wf *WindowedFile) Path() string { return wf.path }

// Size is the file's length as of open or the last reopen.
func (wf *WindowedFile) Size() int64 { return wf.size }

// reopen restores a file descriptor that deregisterLocked invalidated
// under file-limit eviction, so the next Open transparently picks the
// file back up instead of mapping through a nil *os.File.
func (wf *WindowedFile) reopen() error {
	f, err := os.Open(wf.path)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	wf.f = f
	wf.size = info.Size()
	wf.windows = nil
	wf.valid = true
	return nil
}

// mostRecentWindow returns the window with the highest lastUsed tick, or
// nil if the file has none. Used to pick the LRU *file* for eviction: the
// file whose most-recently-used window is the oldest.
func (wf *WindowedFile) mostRecentWindow() *window {
	var best *window
	for _, w := range wf.windows {
		if best == nil || w.lastUsed > best.lastUsed {
			best = w
		}
	}
	return best
}

func (wf *WindowedFile) hasPinnedWindow() bool {
	for _, w := range wf.windows {
		if w.inuse > 0 {
			return true
		}
	}
	return false
}
