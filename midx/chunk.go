package midx

// Chunk ids, big-endian 4-byte tags as they appear in the chunk lookup
// table. Chunk data itself carries no id; it starts directly with its
// content. These mirror MULTIPACK_INDEX_*_ID in the original C header.
const (
	chunkIDPackNames    uint32 = 0x504e414d // "PNAM"
	chunkIDOidFanout    uint32 = 0x4f494446 // "OIDF"
	chunkIDOidLookup    uint32 = 0x4f49444c // "OIDL"
	chunkIDObjectOffset uint32 = 0x4f4f4646 // "OOFF"
	chunkIDLargeOffset  uint32 = 0x4c4f4646 // "LOFF"
)

const chunkTableEntrySize = 12 // 4-byte id + 8-byte big-endian offset

// chunkTableEntry is one row of the chunk lookup table: an id and the
// absolute file offset at which that chunk begins. The terminal row has
// id 0 and an offset equal to the trailer's start.
type chunkTableEntry struct {
	id     uint32
	offset int64
}

// chunkSpan is a chunk's id together with its bounds, derived by pairing
// each chunkTableEntry with the offset of the entry that follows it.
type chunkSpan struct {
	id    uint32
	start int64
	end   int64 // exclusive
}

func (c chunkSpan) length() int64 {
	return c.end - c.start
}

func chunkName(id uint32) string {
	b := [4]byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}
	return string(b[:])
}
