package domain

import "errors"

// Lifecycle error kinds. Only ErrDeliveryFailed escapes the engine; the rest
// are absorbed and reported to the observer.
var (
	// ErrConfigUnavailable means the config store could not be read.
	ErrConfigUnavailable = errors.New("lifecycle config unavailable")

	// ErrRenderNoop means the template rendered to nothing worth sending.
	ErrRenderNoop = errors.New("rendered message is empty")

	// ErrDeliveryFailed wraps a transport error for the new message.
	ErrDeliveryFailed = errors.New("lifecycle message delivery failed")

	// ErrDirectDeliveryUnavailable means the user cannot be reached privately.
	ErrDirectDeliveryUnavailable = errors.New("direct delivery unavailable")

	// ErrCleanupFailed wraps a failed delete of a previous or expired message.
	ErrCleanupFailed = errors.New("lifecycle message cleanup failed")
)
