package classify

import "errors"

var (
	ErrEmptyFrame       = errors.New("empty frame")
	ErrClassifierStatus = errors.New("classifier returned non-2xx status")
	ErrBadResponse      = errors.New("classifier response malformed")
)
