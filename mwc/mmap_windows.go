//go:build windows

package mwc

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// regionHandles tracks the mapping handle behind each slice returned by
// mmapRegion, since Windows needs the CreateFileMapping handle back at
// unmap time and the data slice alone doesn't carry it.
var regionHandles = struct {
	m map[uintptr]windows.Handle
}{m: make(map[uintptr]windows.Handle)}

func mmapRegion(f *os.File, offset int64, length int) ([]byte, error) {
	h, err := windows.CreateFileMapping(windows.Handle(f.Fd()), nil, windows.PAGE_READONLY, 0, 0, nil)
	if err != nil {
		return nil, err
	}
	hi := uint32(offset >> 32)
	lo := uint32(offset & 0xffffffff)
	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_READ, hi, lo, uintptr(length))
	if err != nil {
		windows.CloseHandle(h)
		return nil, err
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), length)
	regionHandles.m[addr] = h
	return data, nil
}

func munmapRegion(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	addr := uintptr(unsafe.Pointer(&data[0]))
	err := windows.UnmapViewOfFile(addr)
	if h, ok := regionHandles.m[addr]; ok {
		windows.CloseHandle(h)
		delete(regionHandles.m, addr)
	}
	return err
}
