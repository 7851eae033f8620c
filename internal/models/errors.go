package models

import "errors"

var (
	// ErrInvalidArgument signals malformed caller input (length mismatch,
	// bad threshold). Never retryable.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDependencyTimeout signals that the embedding provider did not
	// answer within the configured timeout. Safe to retry the whole call.
	ErrDependencyTimeout = errors.New("embedding provider timeout")
	// ErrDependencyUnavailable signals an embedding provider failure.
	ErrDependencyUnavailable = errors.New("embedding provider unavailable")
	// ErrStorage signals a failed persistence write. The in-memory state
	// may be ahead of disk; callers should retry or escalate.
	ErrStorage = errors.New("storage failure")
	// ErrCorruptStore signals inconsistent store artifacts on load.
	// Fatal for the store instance; there is no safe auto-repair.
	ErrCorruptStore = errors.New("corrupt chunk store")
)
