package intersection

import (
	"time"

	"github.com/okian/roadwatch/internal/domain/model"
	"github.com/okian/roadwatch/pkg/logger"
)

// Defaults used when no option overrides them.
const (
	DefaultRadiusMeters    = 20.0
	DefaultDebounce        = 5 * time.Second
	DefaultMaxResults      = 5
	DefaultClassifyTimeout = 2 * time.Second
)

// Option configures a Service.
type Option func(*Service)

// WithRoles sets which roles are tracked. An empty list keeps the default.
func WithRoles(roles ...model.Role) Option {
	return func(s *Service) {
		if len(roles) == 0 {
			return
		}
		s.roles = make(map[model.Role]bool, len(roles))
		for _, r := range roles {
			s.roles[r] = true
		}
	}
}

// WithRadius sets the check radius in meters.
func WithRadius(meters float64) Option {
	return func(s *Service) {
		if meters >= 0 {
			s.radius = meters
		}
	}
}

// WithDebounce sets the window during which further transitions are ignored.
func WithDebounce(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.debounce = d
		}
	}
}

// WithMaxResults caps the points returned per check.
func WithMaxResults(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxResults = n
		}
	}
}

// WithClassifyTimeout bounds a single classification.
func WithClassifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.classifyTimeout = d
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSpawn overrides how classification jobs are started.
func WithSpawn(spawn func(func())) Option {
	return func(s *Service) {
		if spawn != nil {
			s.spawn = spawn
		}
	}
}

// WithPost sets how a finished job hands its bookkeeping back to the loop
// that owns the service. The default runs it in place, which is only safe
// when jobs are spawned synchronously.
func WithPost(post func(func())) Option {
	return func(s *Service) {
		if post != nil {
			s.post = post
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}
