// Package lifecycle provides the one-time global init/shutdown hook this
// module's two process-wide caches (pack.Cache, mwc.Cache) are built
// around, mirroring distr1-distri's atexit.go (RegisterAtExit/RunAtExit)
// and git_mwindow_global_init/_global_shutdown's fail-fast-on-double-init
// behavior.
package lifecycle

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-midx/midx/internal/midxlog"
	"github.com/go-midx/midx/mwc"
	"github.com/go-midx/midx/pack"
)

var (
	mu          sync.Mutex
	initialized atomic.Bool

	packCache *pack.Cache
	mwcCache  *mwc.Cache
)

// GlobalInit installs the process-wide pack-handle cache and
// mapped-window cache. It must fail fast if a prior init's state still
// exists: calling it twice without an intervening GlobalShutdown panics,
// matching GIT_ASSERT(!git__pack_cache) in the original.
func GlobalInit(logger *slog.Logger, cfg mwc.Config) {
	mu.Lock()
	defer mu.Unlock()

	if !initialized.CompareAndSwap(false, true) {
		panic("lifecycle: GlobalInit called while already initialized")
	}

	if logger != nil {
		midxlog.SetLogger(logger)
	}
	packCache = pack.NewCache(midxlog.L)
	mwcCache = mwc.New(cfg)
}

// GlobalShutdown releases both global caches. Safe to call once per
// successful GlobalInit; calling it without a prior GlobalInit is a no-op.
func GlobalShutdown() {
	mu.Lock()
	defer mu.Unlock()

	if !initialized.CompareAndSwap(true, false) {
		return
	}
	packCache = nil
	mwcCache = nil
}

// Packs returns the process-wide pack-handle cache. Panics if GlobalInit
// hasn't run.
func Packs() *pack.Cache {
	mu.Lock()
	defer mu.Unlock()
	if packCache == nil {
		panic("lifecycle: Packs called before GlobalInit")
	}
	return packCache
}

// Windows returns the process-wide mapped-window cache. Panics if
// GlobalInit hasn't run.
func Windows() *mwc.Cache {
	mu.Lock()
	defer mu.Unlock()
	if mwcCache == nil {
		panic("lifecycle: Windows called before GlobalInit")
	}
	return mwcCache
}

// ResetForTest tears down any initialized global state unconditionally,
// letting each test start from a clean slate. It is the lifecycle
// equivalent of the teacher's per-test fsys fixtures in spinner_test.go.
func ResetForTest() {
	mu.Lock()
	defer mu.Unlock()
	initialized.Store(false)
	packCache = nil
	mwcCache = nil
}
