// Package intersection turns static-index lookups into debounced near/far
// transitions for tracked actors and gates frame classification on them.
//
// All methods except the classification job itself run on the event loop.
package intersection

import (
	"context"
	"sync"
	"time"

	"github.com/okian/roadwatch/internal/domain/classify"
	"github.com/okian/roadwatch/internal/domain/cooldown"
	"github.com/okian/roadwatch/internal/domain/model"
	"github.com/okian/roadwatch/internal/domain/registry"
	"github.com/okian/roadwatch/internal/domain/spatial"
	"github.com/okian/roadwatch/pkg/logger"
	"github.com/okian/roadwatch/pkg/metrics"
)

// Dispatcher delivers an envelope to a connection.
type Dispatcher interface {
	Deliver(ctx context.Context, conn model.Conn, env model.Envelope) error
}

type state struct {
	near       bool
	debouncing bool
	last       model.Position
	conn       model.Conn
	nearest    *spatial.Match
	inFlight   bool
}

// Service tracks the intersection state of actors whose role is enabled.
type Service struct {
	index      *spatial.Holder
	sched      cooldown.Scheduler
	out        Dispatcher
	classifier classify.Classifier
	log        logger.Logger
	now        func() time.Time
	spawn      func(func())
	post       func(func())

	roles           map[model.Role]bool
	radius          float64
	debounce        time.Duration
	maxResults      int
	classifyTimeout time.Duration

	states map[string]*state
	jobs   sync.WaitGroup
}

// New creates a service reading the index from holder.
func New(holder *spatial.Holder, sched cooldown.Scheduler, out Dispatcher, classifier classify.Classifier, opts ...Option) *Service {
	s := &Service{
		index:           holder,
		sched:           sched,
		out:             out,
		classifier:      classifier,
		log:             logger.Noop(),
		now:             time.Now,
		spawn:           func(fn func()) { go fn() },
		post:            func(fn func()) { fn() },
		roles:           map[model.Role]bool{model.RoleA: true},
		radius:          DefaultRadiusMeters,
		debounce:        DefaultDebounce,
		maxResults:      DefaultMaxResults,
		classifyTimeout: DefaultClassifyTimeout,
		states:          make(map[string]*state),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func debounceKey(actorID string) string { return "debounce/" + actorID }

// Tracks reports whether actors of role r are followed.
func (s *Service) Tracks(r model.Role) bool { return s.roles[r] }

// Update records the actor's latest position and evaluates a transition.
func (s *Service) Update(ctx context.Context, a *registry.Actor) {
	if !s.roles[a.Role] {
		return
	}
	st, ok := s.states[a.ID]
	if !ok {
		st = &state{}
		s.states[a.ID] = st
	}
	st.last = a.Position
	st.conn = a.Conn
	s.evaluate(ctx, a.ID, st)
}

func (s *Service) evaluate(ctx context.Context, actorID string, st *state) {
	matches := s.index.Load().QueryRadius(st.last.Latitude, st.last.Longitude, s.radius, s.maxResults)
	currentlyNear := len(matches) > 0
	if currentlyNear {
		st.nearest = &matches[0]
	} else {
		st.nearest = nil
	}

	if currentlyNear == st.near || st.debouncing {
		return
	}

	st.near = currentlyNear
	st.debouncing = true
	s.sched.Schedule(debounceKey(actorID), s.debounce, func() { s.expire(actorID, st) })

	ev := model.IntersectionEvent{Kind: model.KindIntersection, Entered: st.near}
	if st.near {
		ev.PointID = st.nearest.Point.ID
		ev.Description = st.nearest.Point.Description
		ev.DistanceMeters = st.nearest.DistanceMeters
	}
	metrics.RecordIntersectionTransition(st.near)
	s.log.Debug(ctx, "intersection transition",
		logger.String("actor_id", actorID), logger.Bool("near", st.near), logger.String("intersection", ev.Description))

	if err := s.out.Deliver(ctx, st.conn, model.NewEnvelope(actorID, ev, s.now())); err != nil {
		metrics.RecordDeliveryError(st.conn.Transport)
		s.log.Warn(ctx, "intersection event delivery failed", logger.String("actor_id", actorID), logger.Error(err))
	}
}

// expire ends the debounce window and re-evaluates the last known position,
// so a transition suppressed during the window is not lost.
func (s *Service) expire(actorID string, st *state) {
	if s.states[actorID] != st {
		return
	}
	st.debouncing = false
	s.evaluate(context.Background(), actorID, st)
}

// Enabled reports whether the classification gate is open for the actor.
func (s *Service) Enabled(actorID string) bool {
	st, ok := s.states[actorID]
	return ok && st.near
}

// Forget drops the actor's state and its pending debounce.
func (s *Service) Forget(actorID string) {
	if _, ok := s.states[actorID]; !ok {
		return
	}
	delete(s.states, actorID)
	s.sched.Cancel(debounceKey(actorID))
}

// Classify checks the gate and, when open, starts an asynchronous
// classification of the frame. A positive result is relayed to the actor
// as a DetectionEvent. At most one classification runs per actor; frames
// arriving meanwhile fail with ErrBusy.
func (s *Service) Classify(ctx context.Context, actorID string, image []byte) error {
	st, ok := s.states[actorID]
	if !ok || !st.near {
		metrics.RecordFrameGated()
		return ErrGated
	}
	if len(image) == 0 {
		return classify.ErrEmptyFrame
	}
	if st.inFlight {
		metrics.RecordFrameBusy()
		return ErrBusy
	}

	st.inFlight = true
	conn := st.conn
	frame := classify.Frame{ActorID: actorID, Image: image}
	s.jobs.Add(1)
	s.spawn(func() {
		defer s.jobs.Done()
		s.runClassification(ctx, conn, frame)
		s.post(func() { st.inFlight = false })
	})
	return nil
}

// Busy reports whether a classification is running for the actor.
func (s *Service) Busy(actorID string) bool {
	st, ok := s.states[actorID]
	return ok && st.inFlight
}

func (s *Service) runClassification(ctx context.Context, conn model.Conn, frame classify.Frame) {
	ctx, cancel := context.WithTimeout(ctx, s.classifyTimeout)
	defer cancel()

	metrics.RecordClassifierRequest()
	start := time.Now()
	res, err := s.classifier.Classify(ctx, frame)
	metrics.RecordClassifierLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordClassifierError()
		s.log.Warn(ctx, "classification failed", logger.String("actor_id", frame.ActorID), logger.Error(err))
		return
	}
	if !res.Detected {
		return
	}

	metrics.RecordClassifierPositive()
	ev := model.DetectionEvent{Kind: model.KindDetection, Label: res.Label, Confidence: res.Confidence}
	if err := s.out.Deliver(ctx, conn, model.NewEnvelope(frame.ActorID, ev, s.now())); err != nil {
		metrics.RecordDeliveryError(conn.Transport)
		s.log.Warn(ctx, "detection delivery failed", logger.String("actor_id", frame.ActorID), logger.Error(err))
	}
}

// Wait blocks until every running classification has finished.
func (s *Service) Wait() { s.jobs.Wait() }

// Tracked returns the number of actors with intersection state.
func (s *Service) Tracked() int { return len(s.states) }

// Near returns the number of tracked actors currently near an intersection.
func (s *Service) Near() int {
	n := 0
	for _, st := range s.states {
		if st.near {
			n++
		}
	}
	return n
}
