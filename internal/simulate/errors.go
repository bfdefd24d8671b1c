package simulate

import "errors"

var (
	// ErrInvalidScenario wraps every scenario validation failure.
	ErrInvalidScenario = errors.New("invalid scenario")
	// ErrExpectationsFailed is returned when an expected alert never arrived.
	ErrExpectationsFailed = errors.New("expected alerts missing")
)
