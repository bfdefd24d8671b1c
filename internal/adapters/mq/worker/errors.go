package worker

import "errors"

// ErrStopped is returned when work is handed to a loop that has exited.
var ErrStopped = errors.New("event loop stopped")
