// Package common defines shared constants and sentinel errors used across
// the transcoder components. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Request validation errors. Both are reported before any I/O.
	ErrValidation        = errors.New("validation error")
	ErrUnsupportedFormat = errors.New("unsupported format")

	// Upload transport errors.
	ErrSizeLimitExceeded = errors.New("size limit exceeded")
	ErrClientAborted     = errors.New("client aborted")

	// Data-plane errors.
	ErrEncodeFailure   = errors.New("encode failure")
	ErrStorageFailure  = errors.New("storage failure")
	ErrMetadataFailure = errors.New("metadata failure")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrAccessDenied   = errors.New("access denied")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
