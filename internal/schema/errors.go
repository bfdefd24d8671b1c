package schema

import "errors"

// Validation failures.
var (
	ErrInvalidJSON     = errors.New("invalid json")
	ErrInvalidDocument = errors.New("document does not match schema")
)
