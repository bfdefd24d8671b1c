package kafka

import "errors"

// ErrNotConfigured is returned when Kafka is used without brokers.
var ErrNotConfigured = errors.New("kafka brokers not configured")
