package mwc

import (
	"math"
	"os"
	"strconv"
)

// Config holds the soft resource budgets the mapped-window cache enforces.
// It is set once, mirroring the teacher's calcMemLimit pattern in
// memlimit.go (an env var with a hard-coded, architecture-dependent
// fallback) rather than a config file or flags package.
type Config struct {
	// WindowSize is the span of a single mapping; offsets are aligned down
	// to WindowSize/2.
	WindowSize int64
	// MappedLimit is the soft ceiling on total mapped bytes across all
	// windows. Eviction targets this but may exceed it if nothing is
	// evictable.
	MappedLimit int64
	// FileLimit is the soft ceiling on the number of registered files. Zero
	// means unlimited.
	FileLimit int
}

const (
	is64Bit = uint64(^uintptr(0)) == math.MaxUint64

	defaultWindowSize64  = 1 << 30        // 1 GiB
	defaultWindowSize32  = 32 << 20       // 32 MiB
	defaultMappedLimit64 = 8 << 40        // 8 TiB
	defaultMappedLimit32 = 256 << 20      // 256 MiB
)

// DefaultConfig reads MIDX_WINDOW_SIZE, MIDX_MAPPED_LIMIT, and
// MIDX_FILE_LIMIT (byte counts / counts, base 10) the same way
// memlimit.go's calcMemLimit reads BEGB, falling back to the
// architecture-dependent defaults when unset or unparsable.
func DefaultConfig() Config {
	windowSize := int64(defaultWindowSize32)
	mappedLimit := int64(defaultMappedLimit32)
	if is64Bit {
		windowSize = defaultWindowSize64
		mappedLimit = defaultMappedLimit64
	}

	cfg := Config{WindowSize: windowSize, MappedLimit: mappedLimit, FileLimit: 0}
	if v, ok := envInt64("MIDX_WINDOW_SIZE"); ok {
		cfg.WindowSize = v
	}
	if v, ok := envInt64("MIDX_MAPPED_LIMIT"); ok {
		cfg.MappedLimit = v
	}
	if v, ok := envInt64("MIDX_FILE_LIMIT"); ok {
		cfg.FileLimit = int(v)
	}
	return cfg
}

func envInt64(name string) (int64, bool) {
	s, set := os.LookupEnv(name)
	if !set {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
