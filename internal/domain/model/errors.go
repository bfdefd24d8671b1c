package model

import "errors"

// Sentinel errors for inbound validation.
var (
	ErrUnknownRole        = errors.New("unknown role")
	ErrEmptyActorID       = errors.New("actor id must not be empty")
	ErrInvalidCoordinates = errors.New("coordinates out of range")
)
