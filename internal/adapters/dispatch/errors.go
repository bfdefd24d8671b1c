package dispatch

import "errors"

// ErrNoRoute is returned when no dispatcher handles a connection's transport.
var ErrNoRoute = errors.New("no dispatcher for transport")
