package core

import "errors"

var (
	// ErrInvalidLimit is returned when a rate limit has a non-positive request count
	ErrInvalidLimit = errors.New("rate limit must be positive")

	// ErrInvalidWindow is returned when a rate limit has a non-positive window
	ErrInvalidWindow = errors.New("rate limit window must be positive")
)
