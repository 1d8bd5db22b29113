package domain

import "errors"

var (
	// ErrInvalidRequest is returned when a job is built from a malformed request
	ErrInvalidRequest = errors.New("invalid request")

	// ErrAlreadyRunning is returned when a busy runner is asked to take another job
	ErrAlreadyRunning = errors.New("runner is already executing a job")

	// ErrInvalidStateTransition signals an attempt to move a job backwards or out of a terminal state
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrTransferFailed wraps any error surfaced by the fetcher
	ErrTransferFailed = errors.New("transfer failed")

	// ErrCancelled marks a job stopped by its owner
	ErrCancelled = errors.New("download cancelled")

	// ErrJobNotFound is returned for unknown job IDs
	ErrJobNotFound = errors.New("job not found")
)
