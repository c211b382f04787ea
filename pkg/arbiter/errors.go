package arbiter

import "errors"

var (
	// ErrBusy means the resource is held and the caller's timeout was too
	// short to ride out a revoke cycle. Retryable.
	ErrBusy = errors.New("resource busy")

	// ErrTimedOut means the caller's deadline passed while waiting.
	ErrTimedOut = errors.New("acquire timed out")

	// ErrStale means the lease was reclaimed out from under its holder.
	// Holders see it on Validate before a write, never asynchronously.
	ErrStale = errors.New("stale lease")

	// ErrUnknownResource means the resource name is not one of the
	// arbitrated hardware groups.
	ErrUnknownResource = errors.New("unknown resource")
)
