package pack

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/exp/mmap"
)

// gitIdxSource reads Git's own on-disk ".idx" v2 format: fanout table,
// sorted object ids, CRC32s (unused here), a 4-byte offset table with a
// high-bit escape into an 8-byte large-offset table. Grounded on
// ReadIndex/readIndexV2 from the gg-scm.io packfile-index reference.
// It is read once, start to finish, so a whole-file ReaderAt mapping
// (rather than the MIDX parser's zero-copy mapping) is the right shape.
type gitIdxSource struct {
	reader *mmap.ReaderAt
	path   string
}

const (
	idxV2Magic   = 0xff744f63
	idxHeaderLen = 8 // magic + version
	fanoutLen    = 256 * 4
)

func openGitIdx(path string) (EntrySource, error) {
	if !strings.HasSuffix(path, ".idx") {
		return nil, fmt.Errorf("pack: %q is not a .idx file", path)
	}
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pack: open %s: %w", path, err)
	}
	return &gitIdxSource{reader: r, path: path}, nil
}

func (s *gitIdxSource) ForEachEntry(cb func(hash [20]byte, offset uint64) error) error {
	size := s.reader.Len()
	if size < idxHeaderLen+fanoutLen+20+20 {
		return fmt.Errorf("pack: %s: truncated index", s.path)
	}

	var hdr [idxHeaderLen]byte
	if _, err := s.reader.ReadAt(hdr[:], 0); err != nil {
		return fmt.Errorf("pack: %s: %w", s.path, err)
	}
	magic := binary.BigEndian.Uint32(hdr[:4])
	version := binary.BigEndian.Uint32(hdr[4:8])
	if magic != idxV2Magic || version != 2 {
		return fmt.Errorf("pack: %s: only .idx v2 is supported", s.path)
	}

	fanout := make([]byte, fanoutLen)
	if _, err := s.reader.ReadAt(fanout, idxHeaderLen); err != nil {
		return fmt.Errorf("pack: %s: %w", s.path, err)
	}
	n := int(binary.BigEndian.Uint32(fanout[fanoutLen-4:]))

	oidsOff := int64(idxHeaderLen + fanoutLen)
	crcOff := oidsOff + int64(n)*20
	offsetsOff := crcOff + int64(n)*4
	largeOff := offsetsOff + int64(n)*4

	oidBuf := make([]byte, 20)
	offBuf := make([]byte, 4)
	for i := 0; i < n; i++ {
		if _, err := s.reader.ReadAt(oidBuf, oidsOff+int64(i)*20); err != nil {
			return fmt.Errorf("pack: %s: %w", s.path, err)
		}
		if _, err := s.reader.ReadAt(offBuf, offsetsOff+int64(i)*4); err != nil {
			return fmt.Errorf("pack: %s: %w", s.path, err)
		}
		raw := binary.BigEndian.Uint32(offBuf)
		var offset uint64
		if raw&0x80000000 != 0 {
			idx := int64(raw & 0x7fffffff)
			var large [8]byte
			if _, err := s.reader.ReadAt(large[:], largeOff+idx*8); err != nil {
				return fmt.Errorf("pack: %s: bad large offset index: %w", s.path, err)
			}
			offset = binary.BigEndian.Uint64(large[:])
		} else {
			offset = uint64(raw)
		}

		var hash [20]byte
		copy(hash[:], oidBuf)
		if err := cb(hash, offset); err != nil {
			return err
		}
	}
	return nil
}

func (s *gitIdxSource) Close() error {
	return s.reader.Close()
}
