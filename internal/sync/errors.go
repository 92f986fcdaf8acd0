package sync

import "errors"

var (
	// ErrAlreadySyncing rejects a pass requested while another is running.
	// The request is not queued and the running pass is not affected.
	ErrAlreadySyncing = errors.New("sync already in progress")

	// ErrAuthenticationRequired aborts a pass before any I/O when no usable
	// remote account is available.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrNetworkUnavailable aborts a pass before any I/O when the remote
	// store is unreachable.
	ErrNetworkUnavailable = errors.New("network unavailable")

	// ErrConflictNotFound is returned when closing a manual conflict that
	// does not exist or was already resolved.
	ErrConflictNotFound = errors.New("conflict not found")
)
