package analytics

import "errors"

var (
	// ErrWriteFailed is returned when a counter increment cannot be stored
	ErrWriteFailed = errors.New("analytics write failed")

	// ErrReadFailed is returned when counters cannot be queried
	ErrReadFailed = errors.New("analytics read failed")

	// ErrInvalidField is returned for an increment of an unknown counter
	ErrInvalidField = errors.New("invalid analytics field")
)
