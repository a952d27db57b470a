// Package mwc implements the mapped-window cache: a process-wide,
// concurrent manager of fixed-size read-only memory mappings over
// packfiles, with LRU eviction of both windows and whole-file
// descriptors under a soft memory budget.
//
// This is built on an explicit sync.Mutex-guarded struct rather than the
// teacher's own channel-owned-state idiom, because the eviction order
// itself (lowest last_used, ties by enumeration order) is part of the
// tested contract here and needs to be scannable and assertable from a
// black-box test, not hidden behind goroutine message-passing.
package mwc

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/go-midx/midx/internal/midxlog"
)

// Stats reports the cache's live and peak resource usage, including the
// counters the original C implementation tracks but never exposes
// (peak_mapped, peak_open_windows, mmap_calls).
type Stats struct {
	Mapped          int64
	OpenWindows     int
	PeakMapped      int64
	PeakOpenWindows int
	MmapCalls       int64
}

// Cache is the process-wide mapped-window cache. The zero value is not
// usable; construct with New.
type Cache struct {
	mu  sync.Mutex
	cfg Config

	files  []*WindowedFile
	mapped int64

	openWindows int
	usedTick    uint64

	peakMapped      int64
	peakOpenWindows int
	mmapCalls       int64

	// bucket is a fast pre-filter from hash(file, alignedOffset) to the
	// window last known to serve that key. It never gates correctness —
	// every lookup that misses or mismatches here falls back to the
	// mandated linear scan over the file's window list — it only saves
	// the scan on the hot path of repeated opens at the same offset.
	bucket map[uint64]*window
}

// New constructs an empty cache with the given config.
func New(cfg Config) *Cache {
	return &Cache{cfg: cfg, bucket: make(map[uint64]*window)}
}

func bucketKey(path string, alignedOffset int64) uint64 {
	h := xxhash.New()
	h.Write([]byte(path))
	var off [8]byte
	binary.BigEndian.PutUint64(off[:], uint64(alignedOffset))
	h.Write(off[:])
	return h.Sum64()
}

// RegisterFile inserts f into the cache's global list. If FileLimit is set
// and already reached, files are evicted first.
func (c *Cache) RegisterFile(f *WindowedFile) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.FileLimit > 0 {
		for len(c.files) >= c.cfg.FileLimit {
			if !c.evictLRUFileLocked() {
				break
			}
		}
	}
	c.files = append(c.files, f)
	return nil
}

// DeregisterFile removes f from the cache's list. Every one of f's windows
// must be unpinned; they are unmapped and the descriptor is closed.
func (c *Cache) DeregisterFile(f *WindowedFile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deregisterLocked(f)
}

func (c *Cache) deregisterLocked(f *WindowedFile) error {
	for _, w := range f.windows {
		if w.inuse > 0 {
			return fmt.Errorf("mwc: cannot deregister %s: a window is still pinned", f.path)
		}
	}
	for _, w := range f.windows {
		c.mapped -= int64(len(w.data))
		c.openWindows--
		munmapRegion(w.data)
		c.invalidateBucketLocked(w)
	}
	f.windows = nil
	f.valid = false
	if f.f != nil {
		f.f.Close()
		f.f = nil
	}
	for i, candidate := range c.files {
		if candidate == f {
			c.files = append(c.files[:i], c.files[i+1:]...)
			break
		}
	}
	return nil
}

// Open returns a slice covering offset, valid for at least extra+1 bytes,
// within f, pinning the window it came from via cur. If cur already pins
// a window covering the requested range, that window is reused. The
// returned slice aliases the mapping; it must not be retained past the
// matching Close.
func (c *Cache) Open(cur *Cursor, f *WindowedFile, offset int64, extra int) ([]byte, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur.win != nil && cur.file == f && cur.win.contains(offset, extra) {
		return sliceFrom(cur.win, offset), int(cur.win.end() - offset), nil
	}

	if cur.win != nil {
		c.unpinLocked(cur)
	}

	if !f.valid {
		midxlog.L.Warn("mwc reopening file evicted under the file limit", "path", f.path)
		if err := f.reopen(); err != nil {
			return nil, 0, fmt.Errorf("mwc: reopen %s: %w", f.path, err)
		}
		c.files = append(c.files, f)
	}

	windowSize := c.cfg.WindowSize
	if windowSize <= 0 {
		windowSize = defaultWindowSize64
	}
	aligned := (offset / (windowSize / 2)) * (windowSize / 2)
	key := bucketKey(f.path, aligned)

	if w, ok := c.bucket[key]; ok && w.owner == f && w.contains(offset, extra) {
		c.pinLocked(w)
		cur.file, cur.win = f, w
		return sliceFrom(w, offset), int(w.end() - offset), nil
	}

	for _, w := range f.windows {
		if w.contains(offset, extra) {
			c.bucket[key] = w
			c.pinLocked(w)
			cur.file, cur.win = f, w
			return sliceFrom(w, offset), int(w.end() - offset), nil
		}
	}

	w, err := c.newWindowLocked(f, aligned)
	if err != nil {
		return nil, 0, err
	}
	if !w.contains(offset, extra) {
		return nil, 0, fmt.Errorf("mwc: mapped window does not cover requested range")
	}
	c.bucket[key] = w
	c.pinLocked(w)
	cur.file, cur.win = f, w
	return sliceFrom(w, offset), int(w.end() - offset), nil
}

func sliceFrom(w *window, offset int64) []byte {
	return w.data[offset-w.base:]
}

// Close unpins cur's window. cur is left pinning nothing.
func (c *Cache) Close(cur *Cursor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur.win == nil {
		return
	}
	c.unpinLocked(cur)
}

func (c *Cache) pinLocked(w *window) {
	c.usedTick++
	w.inuse++
	w.lastUsed = c.usedTick
}

func (c *Cache) unpinLocked(cur *Cursor) {
	cur.win.inuse--
	cur.file, cur.win = nil, nil
}

// newWindowLocked maps a new window over f at alignedOffset, evicting LRU
// windows first to respect MappedLimit (a soft limit: if eviction can't
// bring usage under it, the allocation still proceeds). On mmap failure
// it evicts every evictable window in the process and retries once.
func (c *Cache) newWindowLocked(f *WindowedFile, alignedOffset int64) (*window, error) {
	windowSize := c.cfg.WindowSize
	if windowSize <= 0 {
		windowSize = defaultWindowSize64
	}
	length := windowSize
	if remaining := f.size - alignedOffset; remaining < length {
		length = remaining
	}
	if length <= 0 {
		return nil, fmt.Errorf("mwc: offset %d past end of %s", alignedOffset, f.path)
	}

	if c.cfg.MappedLimit > 0 {
		for c.mapped+length > c.cfg.MappedLimit {
			if !c.evictLRUWindowLocked() {
				break
			}
		}
	}

	data, err := mmapRegion(f.f, alignedOffset, int(length))
	c.mmapCalls++
	if err != nil {
		for c.evictLRUWindowLocked() {
		}
		data, err = mmapRegion(f.f, alignedOffset, int(length))
		c.mmapCalls++
		if err != nil {
			return nil, fmt.Errorf("mwc: mmap %s at %d: %w", f.path, alignedOffset, err)
		}
	}

	w := &window{owner: f, data: data, base: alignedOffset}
	f.windows = append(f.windows, w)
	c.mapped += int64(len(data))
	c.openWindows++
	if c.mapped > c.peakMapped {
		c.peakMapped = c.mapped
	}
	if c.openWindows > c.peakOpenWindows {
		c.peakOpenWindows = c.openWindows
	}
	return w, nil
}

// evictLRUWindowLocked unmaps the evictable window (inuse == 0) with the
// lowest last_used tick across all registered files, ties broken by
// enumeration order. Reports whether it evicted anything.
func (c *Cache) evictLRUWindowLocked() bool {
	var bestFile *WindowedFile
	var bestIdx int = -1
	var bestWindow *window

	for _, f := range c.files {
		for i, w := range f.windows {
			if !w.evictable() {
				continue
			}
			if bestWindow == nil || w.lastUsed < bestWindow.lastUsed {
				bestFile, bestIdx, bestWindow = f, i, w
			}
		}
	}
	if bestWindow == nil {
		return false
	}
	midxlog.L.Debug("mwc evicting window", "path", bestFile.path, "base", bestWindow.base, "lastUsed", bestWindow.lastUsed)
	c.mapped -= int64(len(bestWindow.data))
	c.openWindows--
	munmapRegion(bestWindow.data)
	bestFile.windows = append(bestFile.windows[:bestIdx], bestFile.windows[bestIdx+1:]...)
	c.invalidateBucketLocked(bestWindow)
	return true
}

// evictLRUFileLocked fully deregisters the file, among files with no
// pinned windows and at least one window open, whose most-recently-used
// window is the oldest. A file with no open windows is not a candidate —
// there is nothing stale about it to reclaim, matching
// git_mwindow_scan_recently_used's only_unused scan, which never selects
// a windowless file. Reports whether it evicted anything.
func (c *Cache) evictLRUFileLocked() bool {
	var best *WindowedFile
	var bestTick uint64

	for _, f := range c.files {
		if f.hasPinnedWindow() {
			continue
		}
		mru := f.mostRecentWindow()
		if mru == nil {
			continue
		}
		if best == nil || mru.lastUsed < bestTick {
			best, bestTick = f, mru.lastUsed
		}
	}
	if best == nil {
		return false
	}
	midxlog.L.Debug("mwc evicting file", "path", best.path)
	c.deregisterLocked(best)
	return true
}

func (c *Cache) invalidateBucketLocked(w *window) {
	for k, v := range c.bucket {
		if v == w {
			delete(c.bucket, k)
		}
	}
}

// Stats returns the cache's current and peak resource usage.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Mapped:          c.mapped,
		OpenWindows:     c.openWindows,
		PeakMapped:      c.peakMapped,
		PeakOpenWindows: c.peakOpenWindows,
		MmapCalls:       c.mmapCalls,
	}
}
