package slipway

import "errors"

var (
	// ErrNotFound is returned when a bucket or object is not found
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a bucket already exists or still holds objects
	ErrConflict = errors.New("conflict")
	// ErrInvalidArgument is returned when input validation fails
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrSignatureInvalid is returned when a grant signature does not match
	ErrSignatureInvalid = errors.New("signature invalid")
	// ErrSignatureExpired is returned when a grant is past its expiry
	ErrSignatureExpired = errors.New("signature expired")
	// ErrBackendUnavailable is returned when a blob backend call fails or times out
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrInconsistent is returned when metadata says COMMITTED but the backend blob is absent
	ErrInconsistent = errors.New("metadata inconsistent with backend")
	// ErrUnauthorized is returned when authentication fails
	ErrUnauthorized = errors.New("unauthorized")
)
