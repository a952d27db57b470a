package pack

import "fmt"

// InvariantViolation marks a programmer error in use of the handle cache,
// such as releasing a handle the cache does not hold. By convention it is
// raised via panic, matching the abort the original C implementation
// performs via GIT_ASSERT.
type InvariantViolation struct {
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("pack: invariant violation: %s", e.Reason)
}
