package service

import "errors"

var (
	// ErrStopped is returned by Start after Stop; a service cannot be restarted.
	ErrStopped = errors.New("service stopped")
	// ErrNoSource is returned by ReloadIndex when no poi_source is configured.
	ErrNoSource = errors.New("no intersection source configured")
	// ErrNoIndex is returned by index queries before an index has been loaded.
	ErrNoIndex = errors.New("intersection index not loaded")
)
