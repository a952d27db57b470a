package midx

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"os"

	"github.com/go-midx/midx/internal/midxlog"
	"github.com/go-midx/midx/internal/mmapfile"
)

const (
	magicMIDX     uint32 = 0x4d494458 // "MIDX"
	formatVersion byte   = 1
	oidVersion    byte   = 1
	headerSize    int64  = 12
)

// Digest is the externally supplied digest primitive backing the trailer
// checksum. Callers that need a different 20-byte digest swap this before
// calling Open/Parse; the package never picks an algorithm on its own.
// The default matches the digest Git itself uses for its object store.
var Digest HashFunc = func(data []byte) [HashSize]byte {
	return sha1.Sum(data)
}

// MIDX is a parsed, validated multi-pack index. All slice fields alias the
// backing data given to Parse (or the mapping owned by Open); they must
// not be retained past the owner's Close.
type MIDX struct {
	data     []byte
	mapping  *mmapfile.Mapping // non-nil only when opened via Open
	filename string

	packCount  uint32
	numObjects uint32

	fanout [256]uint32

	oidl []byte // numObjects * HashSize, aliases data
	ooff []byte // numObjects * 8, aliases data
	loff []byte // multiple of 8, aliases data (may be empty)

	packNames []string // the one content-proportional allocation

	trailer [HashSize]byte
}

// Filename is the path Parse/Open was given, or "" for an in-memory image.
func (m *MIDX) Filename() string { return m.filename }

// PackCount is P, the number of packfiles indexed.
func (m *MIDX) PackCount() uint32 { return m.packCount }

// NumObjects is N, the total number of indexed objects.
func (m *MIDX) NumObjects() uint32 { return m.numObjects }

// PackName returns the relative ".idx" name for pack index i.
func (m *MIDX) PackName(i uint32) (string, bool) {
	if i >= uint32(len(m.packNames)) {
		return "", false
	}
	return m.packNames[i], true
}

// Trailer is the 20-byte digest stored at the end of the file.
func (m *MIDX) Trailer() [HashSize]byte { return m.trailer }

// Close releases the file mapping, if Open created one. It is a no-op for
// a MIDX produced by Parse directly.
func (m *MIDX) Close() error {
	if m.mapping == nil {
		return nil
	}
	err := m.mapping.Close()
	m.mapping = nil
	m.data = nil
	m.oidl, m.ooff, m.loff = nil, nil, nil
	return err
}

// Open memory-maps path read-only and parses it with zero copies beyond
// the packfile-names vector. The returned MIDX must be Closed to release
// the mapping.
func Open(path string) (*MIDX, error) {
	mapping, err := mmapfile.Open(path)
	if err != nil {
		return nil, &IoError{Path: path, Cause: err}
	}
	m, err := Parse(mapping.Data(), path)
	if err != nil {
		mapping.Close()
		return nil, err
	}
	m.mapping = mapping
	return m, nil
}

// Parse validates and binds data as a MIDX image. filename is recorded
// for diagnostics and NeedsRefresh; it may be empty for purely in-memory
// use (e.g. round-trip tests over Writer.Dump's output).
func Parse(data []byte, filename string) (*MIDX, error) {
	fail := func(reason string) (*MIDX, error) {
		midxlog.L.Debug("midx parse failed", "filename", filename, "reason", reason)
		return nil, &ParseError{Filename: filename, Reason: reason}
	}

	// Phase 1: header decode.
	if int64(len(data)) < headerSize+HashSize+chunkTableEntrySize {
		return fail("file too small for header, one chunk entry, and trailer")
	}
	magic, _ := getUint32(data, 0)
	if magic != magicMIDX {
		return fail("bad magic")
	}
	if data[4] != formatVersion {
		return fail("unsupported version")
	}
	if data[5] != oidVersion {
		return fail("unsupported oid version")
	}
	chunkCount := int(data[6])
	baseCount := data[7]
	if baseCount != 0 {
		return fail("base-midx chaining is not supported")
	}
	packCount, _ := getUint32(data, 8)
	if chunkCount < 1 {
		return fail("chunk count must be at least 1")
	}

	// Phase 2: trailer offset and chunk-table bounds.
	trailerOffset := int64(len(data)) - HashSize
	tableEnd := headerSize + int64(chunkCount+1)*chunkTableEntrySize
	if tableEnd > trailerOffset {
		return fail("chunk table runs past the trailer")
	}

	// Phase 3: verify the checksum before trusting any chunk content.
	var storedTrailer [HashSize]byte
	copy(storedTrailer[:], data[trailerOffset:trailerOffset+HashSize])
	computed := Digest(data[:trailerOffset])
	if !bytes.Equal(computed[:], storedTrailer[:]) {
		return fail("signature mismatch")
	}

	// Phase 4: walk the chunk table, assigning each id to a slot.
	entries := make([]chunkTableEntry, chunkCount+1)
	for i := range entries {
		off := headerSize + int64(i)*chunkTableEntrySize
		id, ok := getUint32(data, int(off))
		if !ok {
			return fail("truncated chunk table")
		}
		chunkOff, ok := getUint64(data, int(off)+4)
		if !ok {
			return fail("truncated chunk table")
		}
		entries[i] = chunkTableEntry{id: id, offset: int64(chunkOff)}
	}
	last := entries[len(entries)-1]
	if last.id != 0 {
		return fail("terminal chunk table entry must have id 0")
	}
	if last.offset != trailerOffset {
		return fail("terminal chunk table entry must point at the trailer")
	}
	for i, e := range entries {
		if e.offset < tableEnd || e.offset > trailerOffset {
			return fail("chunk offset out of bounds")
		}
		if i > 0 && e.offset <= entries[i-1].offset {
			return fail("chunk offsets must strictly increase")
		}
	}

	spans := make(map[uint32]chunkSpan, chunkCount)
	for i := 0; i < chunkCount; i++ {
		id := entries[i].id
		if id == 0 {
			return fail("non-terminal chunk table entry has id 0")
		}
		if _, dup := spans[id]; dup {
			return fail(fmt.Sprintf("duplicate chunk %s", chunkName(id)))
		}
		switch id {
		case chunkIDPackNames, chunkIDOidFanout, chunkIDOidLookup, chunkIDObjectOffset, chunkIDLargeOffset:
		default:
			return fail(fmt.Sprintf("unknown chunk id %s", chunkName(id)))
		}
		spans[id] = chunkSpan{id: id, start: entries[i].offset, end: entries[i+1].offset}
	}

	m := &MIDX{data: data, filename: filename, packCount: packCount, trailer: storedTrailer}

	// Phase 5: validate and bind each chunk.
	pnam, ok := spans[chunkIDPackNames]
	if !ok || pnam.length() == 0 {
		return fail("missing required chunk PNAM")
	}
	names, err := parsePackNames(data[pnam.start:pnam.end], int(packCount))
	if err != nil {
		return fail(err.Error())
	}
	m.packNames = names

	oidf, ok := spans[chunkIDOidFanout]
	if !ok || oidf.length() == 0 {
		return fail("missing required chunk OIDF")
	}
	if oidf.length() != 256*4 {
		return fail("OIDF must be exactly 1024 bytes")
	}
	for i := 0; i < 256; i++ {
		v, _ := getUint32(data, int(oidf.start)+i*4)
		m.fanout[i] = v
	}
	if !nonDecreasingUint32(m.fanout[:]) {
		return fail("OIDF must be non-decreasing")
	}
	m.numObjects = m.fanout[255]

	oidl, ok := spans[chunkIDOidLookup]
	if !ok || oidl.length() == 0 {
		return fail("missing required chunk OIDL")
	}
	if oidl.length() != int64(m.numObjects)*HashSize {
		return fail("OIDL length does not match object count")
	}
	m.oidl = data[oidl.start:oidl.end]
	if err := validateOidl(m.oidl, int(m.numObjects)); err != nil {
		return fail(err.Error())
	}
	if err := validateFanoutAgainstOidl(m.fanout[:], m.oidl); err != nil {
		return fail(err.Error())
	}

	ooff, ok := spans[chunkIDObjectOffset]
	if !ok || ooff.length() == 0 {
		return fail("missing required chunk OOFF")
	}
	if ooff.length() != int64(m.numObjects)*8 {
		return fail("OOFF length does not match object count")
	}
	m.ooff = data[ooff.start:ooff.end]

	if loff, ok := spans[chunkIDLargeOffset]; ok {
		if loff.length()%8 != 0 {
			return fail("LOFF length must be a multiple of 8")
		}
		m.loff = data[loff.start:loff.end]
	}

	return m, nil
}

// parsePackNames splits a NUL-terminated, NUL-padded PNAM buffer into its
// constituent names, validating ordering and shape along the way. This is
// the one allocation proportional to file content the parser makes.
func parsePackNames(buf []byte, want int) ([]string, error) {
	names := make([]string, 0, want)
	start := 0
	for i, b := range buf {
		if b != 0 {
			continue
		}
		if i == start {
			break // run of trailing NUL padding
		}
		names = append(names, string(buf[start:i]))
		start = i + 1
	}
	// Anything left over must be pure padding.
	for _, b := range buf[start:] {
		if b != 0 {
			return nil, fmt.Errorf("PNAM not NUL-terminated")
		}
	}
	if len(names) != want {
		return nil, fmt.Errorf("PNAM contains %d names, header declares %d", len(names), want)
	}
	for i, n := range names {
		if n == "" {
			return nil, fmt.Errorf("PNAM contains an empty name")
		}
		if bytes.ContainsAny([]byte(n), "/\\") {
			return nil, fmt.Errorf("packfile name %q contains a path separator", n)
		}
		if len(n) < 4 || n[len(n)-4:] != ".idx" {
			return nil, fmt.Errorf("packfile name %q does not end in .idx", n)
		}
		if i > 0 && names[i-1] >= n {
			return nil, fmt.Errorf("packfile names must be strictly ascending")
		}
	}
	return names, nil
}

func validateOidl(oidl []byte, n int) error {
	var prev Hash
	for i := 0; i < n; i++ {
		var h Hash
		copy(h[:], oidl[i*HashSize:(i+1)*HashSize])
		if i == 0 {
			if h.isZero() {
				return fmt.Errorf("OIDL's first entry must be greater than the all-zero hash")
			}
		} else if !prev.less(h) {
			return fmt.Errorf("OIDL must be strictly ascending")
		}
		prev = h
	}
	return nil
}

func validateFanoutAgainstOidl(fanout []uint32, oidl []byte) error {
	var buckets [256]uint32
	n := len(oidl) / HashSize
	for j := 0; j < n; j++ {
		buckets[oidl[j*HashSize]]++
	}
	var cumulative uint32
	for i := 0; i < 256; i++ {
		cumulative += buckets[i]
		if fanout[i] != cumulative {
			return fmt.Errorf("OIDF[%d]=%d does not match OIDL's count of first-byte<=%d entries (%d)", i, fanout[i], i, cumulative)
		}
	}
	return nil
}

// NeedsRefresh reports whether the in-memory MIDX is stale relative to the
// file at path: true when the file is missing, unreadable, of different
// length, or its trailer differs from m's. This is the corrected sense of
// libgit2's git_multipack_index_needs_refresh, whose `cmp == 0` test
// inverts its own documented contract; the intentional correction is
// returning true on a DIFFERENCE, not on a match.
func (m *MIDX) NeedsRefresh(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		midxlog.L.Warn("midx refresh check: stat failed, assuming stale", "path", path, "err", err)
		return true
	}
	if info.Size() < headerSize+HashSize {
		midxlog.L.Warn("midx refresh check: file too small, assuming stale", "path", path)
		return true
	}
	if info.Size() != int64(len(m.data)) {
		midxlog.L.Warn("midx refresh check: file length changed", "path", path)
		return true
	}
	f, err := os.Open(path)
	if err != nil {
		midxlog.L.Warn("midx refresh check: open failed, assuming stale", "path", path, "err", err)
		return true
	}
	defer f.Close()
	var trailer [HashSize]byte
	if _, err := f.ReadAt(trailer[:], info.Size()-HashSize); err != nil {
		midxlog.L.Warn("midx refresh check: trailer read failed, assuming stale", "path", path, "err", err)
		return true
	}
	stale := trailer != m.trailer
	if stale {
		midxlog.L.Warn("midx refresh check: trailer changed", "path", path)
	}
	return stale
}
