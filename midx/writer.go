package midx

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-midx/midx/internal/atomicfile"
	"github.com/go-midx/midx/internal/midxlog"
	"github.com/go-midx/midx/pack"
)

// writerEntry is one (hash, offset, pack_index) tuple accumulated while
// walking each input pack's entries, before sorting and deduplication.
type writerEntry struct {
	hash      Hash
	packIndex uint32
	offset    uint64
}

// inputPack is one pack added to a Writer: its relative ".pack" name (used
// for sort order and to detect a repeated Add), its relative ".idx" name
// (written to PNAM), and the handle backing it, held for the writer's
// lifetime.
type inputPack struct {
	packName string // relative, ends in .pack
	idxName  string // relative, ends in .idx
	handle   *pack.Handle
}

// Writer builds a multi-pack-index image from a set of input packs. It
// owns one pack-cache reference per added pack for its lifetime (acquired
// is +1 on Add, released by Free) — there is no cycle,
// since packs never reference the writer back.
type Writer struct {
	packDir string
	cache   *pack.Cache
	inputs  []*inputPack
}

// NewWriter creates a builder rooted at packDir, which must be the
// directory multi-pack-index will be written into. cache is the pack
// handle cache Add resolves idx paths through; pass the process-wide
// cache from lifecycle, or a private one in tests.
func NewWriter(packDir string, cache *pack.Cache) *Writer {
	return &Writer{packDir: packDir, cache: cache}
}

// Add resolves idxPath relative to the writer's pack directory, acquires a
// pack handle for it, and inserts it into the writer's input set. A path
// whose pack name does not end in ".pack" is a hard error — the
// documented preference over the original writer's silent skip.
func (w *Writer) Add(idxPath string) error {
	var rel string
	if filepath.IsAbs(idxPath) {
		r, err := filepath.Rel(w.packDir, idxPath)
		if err != nil {
			rel = idxPath
		} else {
			rel = r
		}
	} else {
		rel = idxPath
	}
	if !strings.HasSuffix(rel, ".idx") {
		return fmt.Errorf("midx: writer: %q does not end in .idx", rel)
	}
	packName := strings.TrimSuffix(rel, ".idx") + ".pack"
	if !strings.HasSuffix(packName, ".pack") {
		return fmt.Errorf("midx: writer: input pack for %q does not end in .pack", rel)
	}

	for _, ip := range w.inputs {
		if ip.packName == packName {
			return nil // already in the input set
		}
	}

	openPath := idxPath
	if !filepath.IsAbs(openPath) {
		openPath = filepath.Join(w.packDir, rel)
	}
	h, err := w.cache.Get(openPath)
	if err != nil {
		return fmt.Errorf("midx: writer: %w", err)
	}
	w.inputs = append(w.inputs, &inputPack{packName: packName, idxName: rel, handle: h})
	return nil
}

// Free releases every pack handle the writer acquired via Add. Safe to
// call more than once.
func (w *Writer) Free() {
	for _, ip := range w.inputs {
		if ip.handle != nil {
			w.cache.Put(ip.handle)
			ip.handle = nil
		}
	}
	w.inputs = nil
}

// Dump produces the byte-exact MIDX image for the writer's current input
// set. It is pure with respect to the filesystem beyond reading each
// input pack's own index through its EntrySource.
func (w *Writer) Dump() ([]byte, error) {
	inputs := slices.Clone(w.inputs)
	slices.SortFunc(inputs, func(a, b *inputPack) int {
		return strings.Compare(a.packName, b.packName)
	})

	var pnam []byte
	var entries []writerEntry
	for i, ip := range inputs {
		pnam = append(pnam, []byte(ip.idxName)...)
		pnam = append(pnam, 0)

		src, err := ip.handle.Entries()
		if err != nil {
			return nil, fmt.Errorf("midx: writer: %s: %w", ip.idxName, err)
		}
		idx := uint32(i)
		err = src.ForEachEntry(func(hash [20]byte, offset uint64) error {
			entries = append(entries, writerEntry{hash: Hash(hash), packIndex: idx, offset: offset})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("midx: writer: %s: %w", ip.idxName, err)
		}
	}
	for len(pnam)%4 != 0 {
		pnam = append(pnam, 0)
	}

	slices.SortFunc(entries, func(a, b writerEntry) int { return a.hash.cmp(b.hash) })
	entries = slices.CompactFunc(entries, func(a, b writerEntry) bool { return a.hash == b.hash })
	n := len(entries)

	oidf := make([]byte, 256*4)
	{
		var buckets [256]uint32
		for _, e := range entries {
			buckets[e.hash[0]]++
		}
		var cumulative uint32
		for i := 0; i < 256; i++ {
			cumulative += buckets[i]
			putUint32(oidf[i*4:i*4+4], cumulative)
		}
	}

	oidl := make([]byte, n*HashSize)
	for i, e := range entries {
		copy(oidl[i*HashSize:(i+1)*HashSize], e.hash[:])
	}

	ooff := make([]byte, n*8)
	var loff []byte
	for i, e := range entries {
		putUint32(ooff[i*8:i*8+4], e.packIndex)
		if e.offset < (1 << 31) {
			putUint32(ooff[i*8+4:i*8+8], uint32(e.offset))
		} else {
			loffIdx := uint32(len(loff) / 8)
			putUint32(ooff[i*8+4:i*8+8], largeOffsetFlag|loffIdx)
			entry := make([]byte, 8)
			putUint64(entry, e.offset)
			loff = append(loff, entry...)
		}
	}

	return composeImage(uint32(len(inputs)), pnam, oidf, oidl, ooff, loff), nil
}

// composeImage assembles the header, chunk table, chunks, and trailer in
// canonical order, computing chunk offsets from cumulative sizes.
func composeImage(packCount uint32, pnam, oidf, oidl, ooff, loff []byte) []byte {
	type chunk struct {
		id   uint32
		data []byte
	}
	chunks := []chunk{
		{chunkIDPackNames, pnam},
		{chunkIDOidFanout, oidf},
		{chunkIDOidLookup, oidl},
		{chunkIDObjectOffset, ooff},
	}
	if len(loff) > 0 {
		chunks = append(chunks, chunk{chunkIDLargeOffset, loff})
	}

	header := make([]byte, headerSize)
	putUint32(header[0:4], magicMIDX)
	header[4] = formatVersion
	header[5] = oidVersion
	header[6] = byte(len(chunks))
	header[7] = 0
	putUint32(header[8:12], packCount)

	tableSize := int64(len(chunks)+1) * chunkTableEntrySize
	offset := headerSize + tableSize
	table := make([]byte, tableSize)
	for i, c := range chunks {
		row := table[i*chunkTableEntrySize : (i+1)*chunkTableEntrySize]
		putUint32(row[0:4], c.id)
		putUint64(row[4:12], uint64(offset))
		offset += int64(len(c.data))
	}
	terminal := table[len(chunks)*chunkTableEntrySize:]
	putUint32(terminal[0:4], 0)
	putUint64(terminal[4:12], uint64(offset))

	out := make([]byte, 0, offset+HashSize)
	out = append(out, header...)
	out = append(out, table...)
	for _, c := range chunks {
		out = append(out, c.data...)
	}
	digest := Digest(out)
	out = append(out, digest[:]...)
	return out
}

// Commit writes the writer's current Dump output to
// packDir/multi-pack-index atomically, at mode 0644.
func (w *Writer) Commit() error {
	data, err := w.Dump()
	if err != nil {
		midxlog.L.Error("midx commit aborted: dump failed", "packDir", w.packDir, "err", err)
		return err
	}
	path := filepath.Join(w.packDir, "multi-pack-index")
	if err := atomicfile.Write(path, data, 0644); err != nil {
		midxlog.L.Error("midx commit aborted: write failed", "path", path, "err", err)
		return &IoError{Path: path, Cause: err}
	}
	return nil
}
