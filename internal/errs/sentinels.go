// Package errs contains sentinel errors and the client error taxonomy used across layers.
package errs

import "errors"

// Common sentinels matched with errors.Is.
var (
	// ErrNotFound indicates the requested entity does not exist (locally or on the backend).
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates rejected credentials or an expired session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation indicates client-side input rejected before any network call.
	ErrValidation = errors.New("validation failed")

	// ErrRequest indicates the backend answered with a non-success status.
	ErrRequest = errors.New("request failed")

	// ErrTransport indicates the backend could not be reached.
	ErrTransport = errors.New("transport failure")

	// ErrRateLimited indicates a temporary local login lock after repeated failures.
	ErrRateLimited = errors.New("rate limited")
)
