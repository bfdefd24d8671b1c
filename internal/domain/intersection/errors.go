package intersection

import "errors"

var (
	// ErrGated is returned for frames from actors that are not near an intersection.
	ErrGated = errors.New("classification gate closed")
	// ErrBusy is returned while a classification for the actor is still running.
	ErrBusy = errors.New("classification in flight")
)
