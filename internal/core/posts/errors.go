package posts

import (
	"context"
	"errors"
)

// Typed errors for repository operations.
// These allow stores to use errors.Is() for reliable error detection
// instead of fragile string matching.
var (
	// ErrNotFound indicates the requested resource does not exist (HTTP 404).
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the request failed due to invalid or expired credentials (HTTP 401).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the request was rejected due to insufficient permissions (HTTP 403).
	ErrForbidden = errors.New("forbidden")

	// ErrBadRequest indicates the request was malformed or invalid (HTTP 400).
	ErrBadRequest = errors.New("bad request")

	// ErrRateLimited indicates the client is sending requests too quickly (HTTP 429).
	ErrRateLimited = errors.New("rate limited")
)

// IsNotFound returns true if the error is a not-found condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAuthError returns true if the error is an authentication/authorization error.
// This is a convenience function for checking if re-authentication might help.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}

// IsCancellation reports whether an error is the resolution of a superseded
// request. Cancellations are expected: they are never logged and never
// surfaced as failures.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
