package spatial

import "errors"

// ErrInvalidPoint is returned by Build for a point outside WGS84 bounds.
var ErrInvalidPoint = errors.New("invalid point coordinates")
