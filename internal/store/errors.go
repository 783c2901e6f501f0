package store

import "errors"

// Sentinel errors for the taxonomy that tool handlers and HTTP handlers
// translate into isError responses. Check with errors.Is, never string
// comparison.
var (
	// ErrNotFound means the referenced project/agent/task/lock/request is absent.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict means a precondition failed: claim on a non-pending task,
	// a lock already held by someone else, a duplicate pending access request.
	ErrConflict = errors.New("store: conflict")

	// ErrInvalidInput means a schema/validation failure on creation.
	ErrInvalidInput = errors.New("store: invalid input")

	// ErrCyclicDependency means a task's dependency set would form a cycle.
	ErrCyclicDependency = errors.New("store: cyclic dependency")
)
