// Package midxlog is the shared structured-logging setup for the module:
// a single package-level *slog.Logger, settable by embedding applications,
// matching the teacher's direct log/slog usage (no wrapper abstraction).
package midxlog

import "log/slog"

// L is the logger every package in this module logs through. It defaults
// to slog.Default() and can be redirected by a caller that embeds this
// module into a larger service.
var L = slog.Default()

// SetLogger replaces L. Call it before lifecycle.GlobalInit to have the
// pack-handle cache that GlobalInit builds log through the new logger too.
func SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	L = logger
}
