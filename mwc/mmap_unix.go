//go:build unix

package mwc

import (
	"os"

	"golang.org/x/sys/unix"
)

func mmapRegion(f *os.File, offset int64, length int) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), offset, length, unix.PROT_READ, unix.MAP_SHARED)
}

func munmapRegion(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Munmap(data)
}
