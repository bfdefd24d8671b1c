package worker

import (
	"github.com/okian/roadwatch/pkg/logger"
)

// Option applies a configuration option to the Loop.
type Option func(*Loop)

// WithName sets the loop name used in logs.
func WithName(name string) Option {
	return func(l *Loop) {
		if name != "" {
			l.name = name
		}
	}
}

// WithLogger sets a custom logger for the loop.
func WithLogger(logger logger.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithTimerBuffer sets how many fired timer callbacks may wait for the loop.
func WithTimerBuffer(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.timerBuffer = n
		}
	}
}

// WithSystemMetrics makes the loop publish memory, goroutine and GC gauges.
func WithSystemMetrics() Option {
	return func(l *Loop) {
		l.systemMetrics = true
	}
}
