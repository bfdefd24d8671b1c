package queue

import "errors"

// Sentinel errors returned by queue producers.
var (
	ErrFull   = errors.New("command queue full")
	ErrClosed = errors.New("command queue closed")
)
