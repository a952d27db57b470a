//go:build windows

package mmapfile

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

type platformMapping struct {
	handle windows.Handle
	addr   uintptr
}

func (p platformMapping) unmap() error {
	err := windows.UnmapViewOfFile(p.addr)
	windows.CloseHandle(p.handle)
	return err
}

func mapFile(f *os.File, size int) ([]byte, platformMapping, error) {
	h, err := windows.CreateFileMapping(windows.Handle(f.Fd()), nil, windows.PAGE_READONLY, 0, 0, nil)
	if err != nil {
		return nil, platformMapping{}, &os.PathError{Op: "mmap", Path: f.Name(), Err: err}
	}
	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_READ, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(h)
		return nil, platformMapping{}, &os.PathError{Op: "mmap", Path: f.Name(), Err: err}
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	return data, platformMapping{handle: h, addr: addr}, nil
}
