package midx

import "fmt"

// ParseError reports a violated MIDX invariant. The Reason string names the
// specific invariant so callers can log it verbatim; it is user-visible.
type ParseError struct {
	Filename string
	Reason   string
}

func (e *ParseError) Error() string {
	if e.Filename == "" {
		return fmt.Sprintf("midx: parse error: %s", e.Reason)
	}
	return fmt.Sprintf("midx: parse error in %s: %s", e.Filename, e.Reason)
}

// NotFoundError reports that no object matches a lookup prefix, or that a
// large-offset index fell outside the LOFF table.
type NotFoundError struct {
	Reason string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("midx: not found: %s", e.Reason)
}

// AmbiguousError reports that a short prefix matched more than one object.
type AmbiguousError struct {
	Prefix string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("midx: ambiguous prefix %q", e.Prefix)
}

// IoError wraps an open, stat, read, mmap, or write failure with the path
// that triggered it.
type IoError struct {
	Path  string
	Cause error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("midx: io error at %s: %v", e.Path, e.Cause)
}

func (e *IoError) Unwrap() error {
	return e.Cause
}

// InvariantViolation marks a programmer error: a state the package's own
// contract promises can never occur (e.g. releasing a pack handle the
// cache doesn't hold). Callers should not attempt to recover from this;
// by convention it is raised via panic, not returned.
type InvariantViolation struct {
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("midx: invariant violation: %s", e.Reason)
}
