// Package mmapfile maps a whole file read-only and hands back the mapping
// as a plain []byte, with no copy. It exists because golang.org/x/exp/mmap
// only exposes a ReaderAt, and the MIDX parser needs a real zero-copy slice
// to hold zero-copy views (OIDL, OOFF, LOFF) that alias the mapping
// directly, the way git_futils_mmap_ro does in the original C.
package mmapfile

import "os"

// Mapping is a read-only whole-file memory mapping.
type Mapping struct {
	data []byte
	impl platformMapping
}

// Data returns the mapped bytes. The slice is valid until Close.
func (m *Mapping) Data() []byte { return m.data }

// Close unmaps the file. It is safe to call once; a second call is a no-op.
func (m *Mapping) Close() error {
	if m.data == nil {
		return nil
	}
	err := m.impl.unmap()
	m.data = nil
	return err
}

// Open maps path read-only. Empty files map to a zero-length slice without
// invoking the platform mmap call, since mapping zero bytes is undefined
// on most platforms.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		return &Mapping{data: []byte{}}, nil
	}
	if size < 0 || int64(int(size)) != size {
		return nil, &os.PathError{Op: "mmap", Path: path, Err: os.ErrInvalid}
	}

	data, impl, err := mapFile(f, int(size))
	if err != nil {
		return nil, err
	}
	return &Mapping{data: data, impl: impl}, nil
}
