package pack

import (
	"hash/maphash"
	"log/slog"
	"sync"

	"github.com/dgryski/go-tinylfu"
)

var warmSeed = maphash.MakeSeed()

func warmHash(k string) uint64 {
	return maphash.String(warmSeed, k)
}

// Cache is the process-wide, reference-counted map from canonical pack
// path to Handle, guarded by a single mutex per the concurrency model:
// get/put are the only two operations, and a put for a name not in the
// map is a programmer error that aborts.
type Cache struct {
	mu       sync.Mutex
	handles  map[string]*Handle
	warm     *tinylfu.T[string, struct{}]
	logger   *slog.Logger
}

// NewCache builds an empty pack-handle cache. lifecycle.GlobalInit installs
// one process-wide instance; tests construct their own to stay isolated.
func NewCache(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		handles: make(map[string]*Handle),
		warm:    tinylfu.New[string, struct{}](1024, 8192, warmHash),
		logger:  logger,
	}
}

// Get returns the shared handle for path, incrementing its refcount. A
// fresh handle is allocated and installed on first reference.
func (c *Cache) Get(path string) (*Handle, error) {
	canon, err := CanonicalName(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.warm.Add(canon, struct{}{})

	if h, ok := c.handles[canon]; ok {
		h.refcount++
		c.logger.Debug("pack handle reused", "path", canon, "refcount", h.refcount)
		return h, nil
	}
	h := &Handle{path: canon, refcount: 1}
	c.handles[canon] = h
	c.logger.Debug("pack handle opened", "path", canon)
	return h, nil
}

// Put releases one reference to h. When the refcount reaches zero the
// handle is removed from the map. Calling Put for a handle this cache does
// not hold is a programmer error: spec classifies it InvariantViolation
// and requires aborting, so this panics rather than returning an error.
func (c *Cache) Put(h *Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.handles[h.path]
	if !ok || current != h {
		panic(&InvariantViolation{Reason: "put_pack for a handle not in the cache: " + h.path})
	}
	current.refcount--
	if current.refcount < 0 {
		panic(&InvariantViolation{Reason: "pack handle refcount went negative: " + h.path})
	}
	if current.refcount == 0 {
		delete(c.handles, h.path)
		c.logger.Debug("pack handle released", "path", h.path)
	}
}

// Len reports the number of handles currently cached, for tests asserting
// the refcount invariant (spec property 8: the map holds a handle iff its
// refcount is positive).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

// WarmPaths returns canonical paths the tinylfu popularity tracker judges
// to be under the heaviest access churn. This is a diagnostic surface
// layered atop the mandatory exact refcount map; it never substitutes for
// it and has no bearing on correctness.
func (c *Cache) WarmPaths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for path := range c.handles {
		if _, ok := c.warm.Get(path); ok {
			out = append(out, path)
		}
	}
	return out
}
