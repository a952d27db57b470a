package midx_test

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/go-midx/midx"
	"github.com/go-midx/midx/pack"
)

// fakeEntry is one (hash, offset) pair a fakeEntrySource replays.
type fakeEntry struct {
	hash   [20]byte
	offset uint64
}

type fakeEntrySource struct {
	entries []fakeEntry
}

func (f *fakeEntrySource) ForEachEntry(cb func(hash [20]byte, offset uint64) error) error {
	for _, e := range f.entries {
		if err := cb(e.hash, e.offset); err != nil {
			return err
		}
	}
	return nil
}

// withFakePacks installs pack.OpenEntrySource for the duration of a test,
// serving the given path->entries map, and restores the previous value on
// cleanup.
func withFakePacks(t *testing.T, byPath map[string][]fakeEntry) {
	t.Helper()
	prev := pack.OpenEntrySource
	pack.OpenEntrySource = func(path string) (pack.EntrySource, error) {
		return &fakeEntrySource{entries: byPath[path]}, nil
	}
	t.Cleanup(func() { pack.OpenEntrySource = prev })
}

func hashN(b byte) [20]byte {
	var h [20]byte
	h[0] = b
	h[19] = b
	return h
}

func TestWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	byPath := map[string][]fakeEntry{
		dir + "/pack-a.idx": {{hash: hashN(0x01), offset: 100}, {hash: hashN(0x10), offset: 200}},
		dir + "/pack-b.idx": {{hash: hashN(0x05), offset: 50}},
	}
	withFakePacks(t, byPath)

	cache := pack.NewCache(nil)
	w := midx.NewWriter(dir, cache)
	defer w.Free()

	if err := w.Add(dir + "/pack-b.idx"); err != nil {
		t.Fatalf("Add pack-b: %v", err)
	}
	if err := w.Add(dir + "/pack-a.idx"); err != nil {
		t.Fatalf("Add pack-a: %v", err)
	}

	data, err := w.Dump()
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}

	parsed, err := midx.Parse(data, "")
	if err != nil {
		t.Fatalf("Parse(Dump()): %v", err)
	}
	defer parsed.Close()

	if got, want := parsed.NumObjects(), uint32(3); got != want {
		t.Fatalf("NumObjects = %d, want %d", got, want)
	}
	if got, want := parsed.PackCount(), uint32(2); got != want {
		t.Fatalf("PackCount = %d, want %d", got, want)
	}

	// Pack index assignment must follow sorted pack-name order:
	// pack-a.idx sorts before pack-b.idx regardless of add order.
	name0, _ := parsed.PackName(0)
	name1, _ := parsed.PackName(1)
	if name0 != "pack-a.idx" || name1 != "pack-b.idx" {
		t.Fatalf("pack names = %q, %q; want pack-a.idx, pack-b.idx", name0, name1)
	}

	var want []fakeEntry
	for _, entries := range byPath {
		want = append(want, entries...)
	}
	sort.Slice(want, func(i, j int) bool {
		return string(want[i].hash[:]) < string(want[j].hash[:])
	})

	var got []fakeEntry
	err = parsed.ForeachEntry(func(e midx.Entry) error {
		got = append(got, fakeEntry{hash: e.Hash, offset: e.Offset})
		return nil
	})
	if err != nil {
		t.Fatalf("ForeachEntry: %v", err)
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(fakeEntry{})); diff != "" {
		t.Fatalf("decoded entries differ from input (-want +got):\n%s", diff)
	}
}

func TestWriterDeterminism(t *testing.T) {
	dir := t.TempDir()
	byPath := map[string][]fakeEntry{
		dir + "/pack-a.idx": {{hash: hashN(0x01), offset: 100}},
		dir + "/pack-b.idx": {{hash: hashN(0x02), offset: 200}},
	}
	withFakePacks(t, byPath)

	dump := func(addOrder []string) []byte {
		cache := pack.NewCache(nil)
		w := midx.NewWriter(dir, cache)
		defer w.Free()
		for _, p := range addOrder {
			if err := w.Add(p); err != nil {
				t.Fatalf("Add %s: %v", p, err)
			}
		}
		data, err := w.Dump()
		if err != nil {
			t.Fatalf("Dump: %v", err)
		}
		return data
	}

	a := dump([]string{dir + "/pack-a.idx", dir + "/pack-b.idx"})
	b := dump([]string{dir + "/pack-b.idx", dir + "/pack-a.idx"})
	if string(a) != string(b) {
		t.Fatalf("Dump is not order-independent")
	}
}

func TestWriterLargeOffset(t *testing.T) {
	dir := t.TempDir()
	const bigOffset = uint64(1<<31) + 7
	byPath := map[string][]fakeEntry{
		dir + "/pack-a.idx": {{hash: hashN(0x01), offset: bigOffset}},
	}
	withFakePacks(t, byPath)

	cache := pack.NewCache(nil)
	w := midx.NewWriter(dir, cache)
	defer w.Free()
	if err := w.Add(dir + "/pack-a.idx"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	data, err := w.Dump()
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	parsed, err := midx.Parse(data, "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	defer parsed.Close()

	entry, err := parsed.Find(hashN(0x01), 40)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if entry.Offset != bigOffset {
		t.Fatalf("Offset = %d, want %d", entry.Offset, bigOffset)
	}
}

func TestParseRejectsBitFlip(t *testing.T) {
	dir := t.TempDir()
	byPath := map[string][]fakeEntry{
		dir + "/pack-a.idx": {{hash: hashN(0x01), offset: 1}, {hash: hashN(0x02), offset: 2}},
	}
	withFakePacks(t, byPath)

	cache := pack.NewCache(nil)
	w := midx.NewWriter(dir, cache)
	defer w.Free()
	if err := w.Add(dir + "/pack-a.idx"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	data, err := w.Dump()
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}

	data[10] ^= 0x01
	if _, err := midx.Parse(data, ""); err == nil {
		t.Fatalf("Parse accepted a corrupted image")
	} else if pe, ok := err.(*midx.ParseError); !ok || pe.Reason != "signature mismatch" {
		t.Fatalf("Parse error = %v, want ParseError(signature mismatch)", err)
	}
}

func TestParseRejectsTruncation(t *testing.T) {
	dir := t.TempDir()
	byPath := map[string][]fakeEntry{
		dir + "/pack-a.idx": {{hash: hashN(0x01), offset: 1}},
	}
	withFakePacks(t, byPath)

	cache := pack.NewCache(nil)
	w := midx.NewWriter(dir, cache)
	defer w.Free()
	if err := w.Add(dir + "/pack-a.idx"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	data, err := w.Dump()
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}

	if _, err := midx.Parse(data[:len(data)-1], ""); err == nil {
		t.Fatalf("Parse accepted a truncated image")
	}
}
