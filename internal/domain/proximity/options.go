package proximity

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/okian/roadwatch/pkg/logger"
)

// Defaults used when no option overrides them.
const (
	DefaultAlertDistanceMeters = 50.0
	DefaultCooldown            = 5 * time.Second
)

// Option configures an Engine.
type Option func(*Engine)

// WithAlertDistance sets the match threshold in meters.
func WithAlertDistance(meters float64) Option {
	return func(e *Engine) {
		if meters >= 0 {
			e.alertDistance = meters
		}
	}
}

// WithCooldown sets how long a matched pair stays in cooldown.
func WithCooldown(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.cooldown = d
		}
	}
}

// WithActorTTL enables eviction of actors silent for longer than d.
func WithActorTTL(d time.Duration) Option {
	return func(e *Engine) {
		e.actorTTL = d
	}
}

// WithClock overrides the time source used for last-seen and cooldown starts.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithTracer sets the tracer used for per-report spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}
