package parking

import "errors"

var (
	// ErrNotFound reports a session lookup miss.
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a conditional commit rejected because the session
	// status changed between read and commit. Another actor already
	// resolved the session; callers treat this as convergence, not failure.
	ErrConflict = errors.New("session already resolved")
)
