package usage

import "errors"

var (
	// ErrInvalidEvent is returned when a payload is not a well-formed usage event
	ErrInvalidEvent = errors.New("invalid usage event")

	// ErrQueueFull is returned when an event is dropped because a buffer is full
	ErrQueueFull = errors.New("usage queue full")

	// ErrQueueUnavailable is returned when the queue backend cannot be reached
	ErrQueueUnavailable = errors.New("usage queue unavailable")

	// ErrEmitterClosed is returned by Emit after Close
	ErrEmitterClosed = errors.New("usage emitter closed")

	// ErrAlreadyStarted is returned when starting an aggregator twice
	ErrAlreadyStarted = errors.New("aggregator already started")
)
