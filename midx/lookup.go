package midx

import "sort"

// Entry is a resolved lookup result: an object's hash, the index of the
// pack that holds it, and its byte offset within that pack.
type Entry struct {
	Hash      Hash
	PackIndex uint32
	Offset    uint64
}

// Find resolves a hex-nibble prefix to its entry. prefixLen is the number
// of significant nibbles in prefix (1..40); prefix must still be a full
// 20-byte Hash with the insignificant trailing nibbles zeroed by the
// caller, matching the truncated-comparison contract used throughout.
func (m *MIDX) Find(prefix Hash, prefixLen int) (Entry, error) {
	if prefixLen < 1 || prefixLen > 40 {
		return Entry{}, &ParseError{Filename: m.filename, Reason: "prefix length out of range"}
	}

	firstByte := prefix[0]
	lo := uint32(0)
	if firstByte > 0 {
		lo = m.fanout[firstByte-1]
	}
	hi := m.fanout[firstByte]

	trunc := truncate(prefix, prefixLen)
	n := int(hi - lo)
	pos := sort.Search(n, func(i int) bool {
		return truncate(m.hashAt(int(lo)+i), prefixLen).cmp(trunc) >= 0
	})
	p := lo + uint32(pos)

	hit := int(p) < int(m.numObjects) && truncate(m.hashAt(int(p)), prefixLen).cmp(trunc) == 0

	if prefixLen < 40 && int(p)+1 < int(m.numObjects) && sharesPrefix(m.hashAt(int(p)+1), prefix, prefixLen) {
		return Entry{}, &AmbiguousError{Prefix: hexPrefix(prefix, prefixLen)}
	}

	if !hit {
		return Entry{}, &NotFoundError{Reason: "no object matches prefix " + hexPrefix(prefix, prefixLen)}
	}

	packIndex, offset, err := m.decodeOffset(int(p))
	if err != nil {
		return Entry{}, err
	}
	if packIndex >= m.packCount {
		return Entry{}, &ParseError{Filename: m.filename, Reason: "bad pack index"}
	}

	return Entry{Hash: m.hashAt(int(p)), PackIndex: packIndex, Offset: offset}, nil
}

func (m *MIDX) hashAt(i int) Hash {
	var h Hash
	copy(h[:], m.oidl[i*HashSize:(i+1)*HashSize])
	return h
}

func truncate(h Hash, nibbles int) Hash {
	var out Hash
	bytesFull := nibbles / 2
	copy(out[:bytesFull], h[:bytesFull])
	if nibbles%2 == 1 {
		out[bytesFull] = h[bytesFull] & 0xf0
	}
	return out
}

func sharesPrefix(h, prefix Hash, nibbles int) bool {
	return truncate(h, nibbles) == truncate(prefix, nibbles)
}

func hexPrefix(h Hash, nibbles int) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, nibbles)
	for i := 0; i < nibbles; i++ {
		b := h[i/2]
		if i%2 == 0 {
			out[i] = hexdigits[b>>4]
		} else {
			out[i] = hexdigits[b&0xf]
		}
	}
	return string(out)
}

const largeOffsetFlag = uint32(0x80000000)

func (m *MIDX) decodeOffset(i int) (packIndex uint32, offset uint64, err error) {
	packIndex, _ = getUint32(m.ooff, i*8)
	raw, _ := getUint32(m.ooff, i*8+4)
	if raw&largeOffsetFlag == 0 {
		return packIndex, uint64(raw & 0x7fffffff), nil
	}
	idx := raw & 0x7fffffff
	if int64(idx)*8+8 > int64(len(m.loff)) {
		return 0, 0, &NotFoundError{Reason: "bad large-offset index"}
	}
	off, _ := getUint64(m.loff, int(idx)*8)
	return packIndex, off, nil
}

// ForeachEntry iterates OIDL in order, calling cb for each resolved entry.
// Iteration halts on cb's first non-nil return, which is surfaced verbatim
// to the caller — the Go analogue of the original's "halt on first
// non-zero callback return".
func (m *MIDX) ForeachEntry(cb func(Entry) error) error {
	for i := 0; i < int(m.numObjects); i++ {
		packIndex, offset, err := m.decodeOffset(i)
		if err != nil {
			return err
		}
		if packIndex >= m.packCount {
			return &ParseError{Filename: m.filename, Reason: "bad pack index"}
		}
		if err := cb(Entry{Hash: m.hashAt(i), PackIndex: packIndex, Offset: offset}); err != nil {
			return err
		}
	}
	return nil
}
