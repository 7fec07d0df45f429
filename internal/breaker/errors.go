package breaker

import "errors"

var (
	// ErrInvalidThreshold is returned when a retained-fraction threshold is
	// outside (0, 10000] basis points.
	ErrInvalidThreshold = errors.New("retained fraction must be in (0, 10000] basis points")

	// ErrAlreadyInitialized is returned when creating a limiter for an
	// identifier that already has one.
	ErrAlreadyInitialized = errors.New("limiter already initialized")

	// ErrNotInitialized is returned by operations that require an existing
	// limiter for the identifier.
	ErrNotInitialized = errors.New("limiter not initialized")
)
