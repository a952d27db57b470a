package midx_test

import (
	"testing"

	"github.com/go-midx/midx"
	"github.com/go-midx/midx/pack"
)

func TestWriterDedupesIdenticalHashes(t *testing.T) {
	dir := t.TempDir()
	h := hashN(0x07)
	byPath := map[string][]fakeEntry{
		dir + "/pack-a.idx": {{hash: h, offset: 11}},
		dir + "/pack-b.idx": {{hash: h, offset: 22}},
	}
	withFakePacks(t, byPath)

	cache := pack.NewCache(nil)
	w := midx.NewWriter(dir, cache)
	defer w.Free()
	if err := w.Add(dir + "/pack-a.idx"); err != nil {
		t.Fatalf("Add pack-a: %v", err)
	}
	if err := w.Add(dir + "/pack-b.idx"); err != nil {
		t.Fatalf("Add pack-b: %v", err)
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

	if parsed.NumObjects() != 1 {
		t.Fatalf("NumObjects = %d, want 1 (duplicate hash across packs must collapse)", parsed.NumObjects())
	}
}

func TestWriterOmitsLOFFWhenUnneeded(t *testing.T) {
	dir := t.TempDir()
	byPath := map[string][]fakeEntry{
		dir + "/pack-a.idx": {{hash: hashN(0x01), offset: 123}},
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

	chunkCount := data[6]
	if chunkCount != 4 {
		t.Fatalf("chunk count = %d, want 4 (no LOFF chunk without a large offset)", chunkCount)
	}
}

func TestWriterAddResolvesRelativeToPackDir(t *testing.T) {
	dir := t.TempDir()
	byPath := map[string][]fakeEntry{
		dir + "/pack-a.idx": {{hash: hashN(0x01), offset: 42}},
	}
	withFakePacks(t, byPath)

	cache := pack.NewCache(nil)
	w := midx.NewWriter(dir, cache)
	defer w.Free()

	// A bare relative idx_path must be opened relative to packDir, not the
	// process's working directory.
	if err := w.Add("pack-a.idx"); err != nil {
		t.Fatalf("Add (relative): %v", err)
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

	if parsed.NumObjects() != 1 {
		t.Fatalf("NumObjects = %d, want 1 (relative Add failed to resolve against packDir)", parsed.NumObjects())
	}
}

func TestFreeIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	byPath := map[string][]fakeEntry{
		dir + "/pack-a.idx": {{hash: hashN(0x01), offset: 1}},
	}
	withFakePacks(t, byPath)
	cache := pack.NewCache(nil)
	w := midx.NewWriter(dir, cache)
	if err := w.Add(dir + "/pack-a.idx"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	w.Free()
	w.Free() // must not double-release the pack handle

	if got := cache.Len(); got != 0 {
		t.Fatalf("cache.Len() = %d, want 0 after Free", got)
	}
}
