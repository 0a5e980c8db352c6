package core

import "fmt"

// Assert reports an internal invariant violation. Debug builds abort, release
// builds log the violation and let the caller continue with its fallback path.
// The returned error wraps ErrInvariant, or is nil when cond holds.
func Assert(cond bool, msg string, args ...interface{}) error {
	if cond {
		return nil
	}
	err := fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(msg, args...))
	if DebugBuild {
		LogFatal(err.Error())
	}
	LogError(err.Error())
	return err
}
