package api

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the failure taxonomy. Callers classify with errors.Is;
// messages wrapping the security sentinels must echo only the offending
// filename, never an absolute filesystem path.
var (
	// ErrInvalidParameter marks pre-flight validation failures that never
	// reach the remote API.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrPathTraversal marks filenames whose normalized form escapes the
	// sandbox root. Security-fatal, never retried.
	ErrPathTraversal = errors.New("path traversal detected")
	// ErrSymlinkRejected marks paths with a symbolic link at any component.
	// Security-fatal, never retried.
	ErrSymlinkRejected = errors.New("symlink rejected")
	// ErrNotFound marks an absent job or artifact.
	ErrNotFound = errors.New("not found")
	// ErrNotReady marks an operation issued against a job in the wrong
	// lifecycle state (e.g. materializing before completion).
	ErrNotReady = errors.New("job not ready")
	// ErrOutOfRange marks a chunk offset beyond the artifact size.
	ErrOutOfRange = errors.New("offset out of range")
	// ErrIntegrity marks a byte-count mismatch between the remote-declared
	// size and the bytes actually written.
	ErrIntegrity = errors.New("integrity check failed")
)

// RemoteError wraps a transient or permanent failure reported by the external
// generation API or object store. It is always surfaced to the caller rather
// than retried internally, so retry cadence and backoff stay caller-driven.
type RemoteError struct {
	Status     int
	Code       string
	Detail     string
	RetryAfter time.Duration
	Err        error
}

// Error renders the remote failure without leaking transport internals.
func (e *RemoteError) Error() string {
	switch {
	case e.Detail != "" && e.Status > 0:
		return fmt.Sprintf("remote error (status %d): %s", e.Status, e.Detail)
	case e.Status > 0:
		return fmt.Sprintf("remote error (status %d)", e.Status)
	case e.Err != nil:
		return fmt.Sprintf("remote error: %v", e.Err)
	default:
		return "remote error"
	}
}

// Unwrap exposes the underlying transport error for errors.Is/As chains.
func (e *RemoteError) Unwrap() error { return e.Err }

// Retryable reports whether the caller may usefully retry with backoff.
// Rate limits, timeouts and 5xx responses qualify; other 4xx do not.
func (e *RemoteError) Retryable() bool {
	if e.RetryAfter > 0 {
		return true
	}
	switch {
	case e.Status == 408, e.Status == 429, e.Status >= 500:
		return true
	case e.Status == 0 && e.Err != nil:
		// Transport-level failure with no HTTP status: connection resets,
		// timeouts and DNS blips.
		return true
	}
	return false
}

// IsRetryable reports whether err carries a retryable RemoteError.
func IsRetryable(err error) bool {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Retryable()
	}
	return false
}
