package service

import (
	"github.com/okian/roadwatch/internal/adapters/dispatch"
	"github.com/okian/roadwatch/internal/adapters/repository"
	"github.com/okian/roadwatch/internal/domain/classify"
	"github.com/okian/roadwatch/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service and its components.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithSource overrides the intersection source built from poi_source.
func WithSource(src repository.Source) Option {
	return func(s *Service) {
		s.source = src
	}
}

// WithClassifier overrides the classifier built from the configuration.
func WithClassifier(c classify.Classifier) Option {
	return func(s *Service) {
		if c != nil {
			s.classifier = c
		}
	}
}

// WithRoute registers an extra dispatcher for connections of transport.
func WithRoute(transport string, d dispatch.Dispatcher) Option {
	return func(s *Service) {
		if transport != "" && d != nil {
			s.routes[transport] = d
		}
	}
}
