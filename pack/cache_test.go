package pack_test

import (
	"testing"

	"github.com/go-midx/midx/pack"
)

func TestGetPutRefcount(t *testing.T) {
	dir := t.TempDir()
	c := pack.NewCache(nil)

	h1, err := c.Get(dir + "/pack-a.idx")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := c.Len(); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}

	h2, err := c.Get(dir + "/pack-a.idx")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("Get for the same canonical path returned different handles")
	}
	if got := c.Len(); got != 1 {
		t.Fatalf("Len = %d, want 1 (second Get must not allocate a new handle)", got)
	}

	c.Put(h1)
	if got := c.Len(); got != 1 {
		t.Fatalf("Len = %d, want 1 (refcount still 1 after one Put of two Gets)", got)
	}
	c.Put(h2)
	if got := c.Len(); got != 0 {
		t.Fatalf("Len = %d, want 0 (handle removed once refcount hits zero)", got)
	}
}

func TestPutUnknownHandlePanics(t *testing.T) {
	c := pack.NewCache(nil)
	dir := t.TempDir()
	h, err := c.Get(dir + "/pack-a.idx")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	c.Put(h)

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("Put of an already-released handle did not panic")
		}
	}()
	c.Put(h)
}

func TestCanonicalNameRejectsGlobs(t *testing.T) {
	if _, err := pack.CanonicalName("/packs/pack-*.idx"); err == nil {
		t.Fatalf("CanonicalName accepted a glob-shaped path")
	}
}

func TestWarmPathsTracksActiveHandles(t *testing.T) {
	dir := t.TempDir()
	c := pack.NewCache(nil)
	h, err := c.Get(dir + "/pack-a.idx")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer c.Put(h)

	warm := c.WarmPaths()
	found := false
	for _, p := range warm {
		if p == h.Path() {
			found = true
		}
	}
	if !found {
		t.Fatalf("WarmPaths() = %v, want it to include %s", warm, h.Path())
	}
}
