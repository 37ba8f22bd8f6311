package scheduler

import "errors"

var (
	// ErrDuplicateStream is returned when a stream id is already registered
	ErrDuplicateStream = errors.New("stream already registered")

	// ErrCapacityExceeded is returned when the stream registry is full
	ErrCapacityExceeded = errors.New("maximum stream count reached")

	// ErrStreamNotFound is returned when a stream id is not registered
	ErrStreamNotFound = errors.New("stream not found")

	// ErrUnknownStream is returned when a frame arrives for an unregistered stream
	ErrUnknownStream = errors.New("unknown stream")

	// ErrProcessorNotFound is returned when a processor id is not in the pool
	ErrProcessorNotFound = errors.New("processor not found")

	// ErrNoProcessorAvailable is returned when no processor can accept a task
	ErrNoProcessorAvailable = errors.New("no processor available")

	// ErrInvalidPriority is returned when a priority class is out of range
	ErrInvalidPriority = errors.New("invalid priority class")
)
