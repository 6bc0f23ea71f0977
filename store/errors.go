package store

import "errors"

var (
	// ErrStoreUnavailable is returned when the bucket store cannot be reached or the atomic operation fails
	ErrStoreUnavailable = errors.New("bucket store unavailable")

	// ErrInvalidKey is returned when the bucket key is empty
	ErrInvalidKey = errors.New("bucket key cannot be empty")

	// ErrUnexpectedReply is returned when the bucket script answers with an unknown shape
	ErrUnexpectedReply = errors.New("unexpected reply from bucket script")

	// ErrUnknownPolicy is returned when a failure policy name cannot be parsed
	ErrUnknownPolicy = errors.New("unknown failure policy")
)
