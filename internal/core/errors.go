package core

import "errors"

var (
	// ErrUnknownDomain is returned when no schema is registered for a domain.
	ErrUnknownDomain = errors.New("unknown domain")

	// ErrStaleSnapshot is returned when the table changed after it was rendered.
	ErrStaleSnapshot = errors.New("stale snapshot")

	// ErrVersionRequired is returned when a sync omits the version token and
	// the service is configured to require one.
	ErrVersionRequired = errors.New("version token required")

	// ErrLocked is returned when another sync of the same domain holds the lock.
	ErrLocked = errors.New("domain locked")

	// ErrRowNotFound is returned by stores when a delete matches no row.
	ErrRowNotFound = errors.New("row not found")
)
