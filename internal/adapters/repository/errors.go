package repository

import "errors"

// Sentinel errors for point-of-interest sources.
var (
	ErrMalformedSource   = errors.New("malformed point source")
	ErrSourceUnreachable = errors.New("point source unreachable")
	ErrUnsupportedScheme = errors.New("unsupported point source scheme")
)
