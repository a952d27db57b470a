package mwc

// window is a contiguous read-only mapping covering
// [base, base+int64(len(data))) of a file's bytes. last-used and pin
// count are protected by the owning Cache's mutex; a window is never
// touched without it held.
type window struct {
	owner    *WindowedFile
	data     []byte
	base     int64
	lastUsed uint64
	inuse    int
}

func (w *window) end() int64 { return w.base + int64(len(w.data)) }

// contains reports whether [offset, offset+extra] lies entirely within
// this window.
func (w *window) contains(offset int64, extra int) bool {
	return offset >= w.base && offset+int64(extra) < w.end()
}

func (w *window) evictable() bool { return w.inuse == 0 }

// Cursor is a caller-owned slot naming the window currently pinned by one
// reader. The zero Cursor pins nothing.
type Cursor struct {
	file *WindowedFile
	win  *window
}
