package types

import (
	"errors"
	"fmt"
)

var (
	// ErrPathTraversal is returned before any I/O when a supplied path would
	// resolve outside the owner's sandbox.
	ErrPathTraversal = errors.New("path escapes sandbox")

	// ErrNotFound covers unknown sessions, files and paths. Owner mismatches
	// are reported as ErrNotFound as well, so probing cannot distinguish
	// "exists but not yours" from "does not exist".
	ErrNotFound = errors.New("not found")

	// ErrWrongState is returned for lifecycle transitions the state machine
	// does not allow (e.g. chunk into a paused session, resume a completed one).
	ErrWrongState = errors.New("operation not allowed in current state")
)

// OffsetMismatchError rejects a chunk whose start offset is not exactly the
// number of bytes already received. Expected tells the client where to resume.
type OffsetMismatchError struct {
	Expected int64
	Got      int64
}

func (e *OffsetMismatchError) Error() string {
	return fmt.Sprintf("offset mismatch: expected %d, got %d", e.Expected, e.Got)
}

// CapacityError rejects a request that would exceed a configured ceiling.
// The request should be retried later, not queued.
type CapacityError struct {
	Kind  string // "sessions", "files", "streams", "rate"
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s capacity exceeded (limit %d)", e.Kind, e.Limit)
}

// WriteFailure wraps an I/O error during a chunk append. The file task is
// marked errored but the session stays usable for its other files.
type WriteFailure struct {
	Path string
	Err  error
}

func (e *WriteFailure) Error() string {
	return fmt.Sprintf("write to %s failed: %v", e.Path, e.Err)
}

func (e *WriteFailure) Unwrap() error { return e.Err }
