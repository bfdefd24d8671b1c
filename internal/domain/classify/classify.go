// Package classify defines the contract for the external frame classifier
// that decides whether a camera frame shows the object of interest.
package classify

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Default simulated classifier configuration.
const (
	defaultMinLatency    = 80 * time.Millisecond
	defaultMaxLatency    = 150 * time.Millisecond
	defaultRandomSeed    = 42
	defaultLabel         = "car"
	defaultDetectionRate = 0.5
)

// Frame is one encoded camera image from an actor.
type Frame struct {
	ActorID string
	Image   []byte
}

// Result is the classifier's verdict for a frame.
type Result struct {
	Detected   bool
	Label      string
	Confidence float64
}

// Classifier inspects a frame. Implementations must honour ctx.
type Classifier interface {
	Classify(ctx context.Context, f Frame) (Result, error)
}

// Option applies a configuration option to the SimulatedClassifier.
type Option func(*SimulatedClassifier)

// WithLatencyRange sets the simulated latency range.
func WithLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(s *SimulatedClassifier) {
		if minLatency >= 0 && maxLatency >= minLatency {
			s.minLatency = minLatency
			s.maxLatency = maxLatency
		}
	}
}

// WithLabel sets the label reported on a positive detection.
func WithLabel(label string) Option {
	return func(s *SimulatedClassifier) {
		if label != "" {
			s.label = label
		}
	}
}

// WithDetectionRate sets the probability of a positive detection.
func WithDetectionRate(p float64) Option {
	return func(s *SimulatedClassifier) {
		if p >= 0 && p <= 1 {
			s.rate = p
		}
	}
}

// WithSeed reseeds the random source.
func WithSeed(seed int64) Option {
	return func(s *SimulatedClassifier) {
		s.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic seed for reproducible testing
	}
}

// SimulatedClassifier stands in for the external detector: it waits a random
// latency and answers with a seeded coin flip.
type SimulatedClassifier struct {
	minLatency time.Duration
	maxLatency time.Duration
	label      string
	rate       float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedClassifier creates a simulated classifier with configuration options.
func NewSimulatedClassifier(opts ...Option) *SimulatedClassifier {
	s := &SimulatedClassifier{
		minLatency: defaultMinLatency,
		maxLatency: defaultMaxLatency,
		label:      defaultLabel,
		rate:       defaultDetectionRate,
		rng:        rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // deterministic seed for reproducible testing
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Classify waits the simulated latency and returns a verdict.
func (s *SimulatedClassifier) Classify(ctx context.Context, f Frame) (Result, error) {
	if len(f.Image) == 0 {
		return Result{}, ErrEmptyFrame
	}

	s.mu.Lock()
	latency := s.minLatency
	if span := s.maxLatency - s.minLatency; span > 0 {
		latency += time.Duration(s.rng.Int63n(int64(span)))
	}
	hit := s.rng.Float64() < s.rate
	confidence := 0.5 + s.rng.Float64()/2
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return Result{}, fmt.Errorf("context cancelled: %w", ctx.Err())
	case <-time.After(latency):
	}

	if !hit {
		return Result{Detected: false}, nil
	}
	return Result{Detected: true, Label: s.label, Confidence: confidence}, nil
}
