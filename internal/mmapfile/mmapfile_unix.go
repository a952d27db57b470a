//go:build unix

package mmapfile

import (
	"os"

	"golang.org/x/sys/unix"
)

type platformMapping struct {
	data []byte
}

func (p platformMapping) unmap() error {
	return unix.Munmap(p.data)
}

func mapFile(f *os.File, size int) ([]byte, platformMapping, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, platformMapping{}, &os.PathError{Op: "mmap", Path: f.Name(), Err: err}
	}
	return data, platformMapping{data: data}, nil
}
