// Package proximity matches actors of opposite roles that come within the
// alert distance of each other and manages the shared cooldown that follows.
//
// Every report triggers a linear sweep over the registry, so the total cost
// grows quadratically with the number of active actors. That is fine at the
// scale this service targets; a dynamic spatial index would be needed beyond it.
package proximity

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/roadwatch/internal/domain/cooldown"
	"github.com/okian/roadwatch/internal/domain/geo"
	"github.com/okian/roadwatch/internal/domain/model"
	"github.com/okian/roadwatch/internal/domain/registry"
	"github.com/okian/roadwatch/pkg/logger"
	"github.com/okian/roadwatch/pkg/metrics"
)

// Dispatcher delivers an envelope to a connection. Delivery is fire-and-forget.
type Dispatcher interface {
	Deliver(ctx context.Context, conn model.Conn, env model.Envelope) error
}

// Engine owns the registry and cooldown state. It must only be driven from
// a single goroutine, and its scheduler must run callbacks on that goroutine too.
type Engine struct {
	reg     *registry.Registry
	tracker *cooldown.Tracker
	sched   cooldown.Scheduler
	out     Dispatcher
	log     logger.Logger
	tracer  trace.Tracer
	now     func() time.Time

	alertDistance float64
	cooldown      time.Duration
	actorTTL      time.Duration
}

// New creates an engine over reg that releases cooldowns through sched and
// sends alerts through out.
func New(reg *registry.Registry, sched cooldown.Scheduler, out Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		reg:           reg,
		tracker:       cooldown.NewTracker(),
		sched:         sched,
		out:           out,
		log:           logger.Noop(),
		tracer:        otel.Tracer("github.com/okian/roadwatch/proximity"),
		now:           time.Now,
		alertDistance: DefaultAlertDistanceMeters,
		cooldown:      DefaultCooldown,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Report validates and records a position report, then sweeps for matches.
// It returns the live actor record on success.
func (e *Engine) Report(ctx context.Context, conn model.Conn, rep model.PositionReport) (*registry.Actor, error) {
	ctx, span := e.tracer.Start(ctx, "proximity.report",
		trace.WithAttributes(attribute.String("actor.id", rep.ID), attribute.String("conn", conn.String())))
	defer span.End()

	role, err := rep.Validate()
	if err != nil {
		metrics.RecordReportRejected("malformed")
		e.log.Warn(ctx, "rejected malformed report", logger.String("actor_id", rep.ID), logger.Error(err))
		span.SetStatus(codes.Error, "malformed report")
		return nil, fmt.Errorf("%w: %w", ErrMalformedReport, err)
	}

	u, err := e.reg.Upsert(rep.ID, role, rep.Position(), conn, e.now())
	if err != nil {
		metrics.RecordReportRejected("role_conflict")
		e.log.Warn(ctx, "rejected report", logger.String("actor_id", rep.ID), logger.Error(err))
		span.SetStatus(codes.Error, "role conflict")
		return nil, err
	}
	metrics.RecordReportReceived(conn.Transport)
	metrics.UpdateActiveActors(e.reg.Len())

	matches := e.sweep(ctx, u)
	span.SetAttributes(attribute.String("actor.role", string(role)), attribute.Int("proximity.matches", matches))
	return u, nil
}

// sweep compares u against every other actor. A panic abandons the sweep;
// every state change made before it is already complete and consistent.
func (e *Engine) sweep(ctx context.Context, u *registry.Actor) (matches int) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordSweepPanic()
			metrics.RecordErrorByComponent("proximity", "panic")
			e.log.Error(ctx, "proximity sweep panicked", logger.String("actor_id", u.ID), logger.Any("panic", r))
		}
		metrics.RecordSweepLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	for v := range e.reg.AllExcept(u.ID) {
		if u.InCooldown() {
			break
		}
		if v.Role == u.Role || v.InCooldown() {
			continue
		}
		d := geo.DistanceMeters(u.Position, v.Position)
		if d > e.alertDistance {
			continue
		}
		matches++
		e.match(ctx, u, v, d)
	}
	return matches
}

func (e *Engine) match(ctx context.Context, u, v *registry.Actor, d float64) {
	now := e.now()
	pair := e.tracker.Begin(u.ID, v.ID, now)
	u.Cooldown = pair
	v.Cooldown = pair
	e.sched.Schedule(pair.TimerKey(), e.cooldown, func() { e.release(pair) })

	metrics.RecordPairMatched()
	metrics.UpdateActiveCooldowns(e.tracker.Active())
	e.log.Info(ctx, "proximity alert",
		logger.String("actor_a", u.ID), logger.String("actor_b", v.ID), logger.Float64("distance_m", d))

	e.deliver(ctx, u, alertAbout(v, u, d), now)
	e.deliver(ctx, v, alertAbout(u, v, d), now)
}

// alertAbout describes other from the point of view of recipient.
func alertAbout(other, recipient *registry.Actor, d float64) model.Alert {
	return model.Alert{
		Kind:           model.KindAlert,
		FromID:         other.ID,
		FromRole:       other.Role,
		Latitude:       other.Position.Latitude,
		Longitude:      other.Position.Longitude,
		DistanceMeters: d,
		BearingDegrees: geo.BearingDegrees(recipient.Position, other.Position),
	}
}

func (e *Engine) deliver(ctx context.Context, to *registry.Actor, ev model.Event, at time.Time) {
	metrics.RecordAlertEmitted()
	if err := e.out.Deliver(ctx, to.Conn, model.NewEnvelope(to.ID, ev, at)); err != nil {
		metrics.RecordDeliveryError(to.Conn.Transport)
		e.log.Warn(ctx, "alert delivery failed",
			logger.String("actor_id", to.ID), logger.String("conn", to.Conn.String()), logger.Error(err))
	}
}

// release clears the pair from each member still registered and still
// pointing at it. Members that disconnected in the meantime are skipped.
func (e *Engine) release(pair *cooldown.Pair) {
	for _, id := range pair.Members {
		if a, ok := e.reg.Get(id); ok && a.Cooldown == pair {
			a.Cooldown = nil
		}
	}
	e.tracker.End(pair)
	metrics.UpdateActiveCooldowns(e.tracker.Active())
}

// Disconnect removes every actor bound to conn and returns them. A pending
// release is kept while one member of its pair is still registered and is
// cancelled once neither is.
func (e *Engine) Disconnect(ctx context.Context, conn model.Conn) []*registry.Actor {
	removed := e.reg.RemoveByConn(conn)
	e.dropPairs(removed)
	if len(removed) > 0 {
		metrics.UpdateActiveActors(e.reg.Len())
		e.log.Debug(ctx, "connection closed", logger.String("conn", conn.String()), logger.Int("actors", len(removed)))
	}
	return removed
}

// Prune evicts actors whose last report is older than the configured TTL.
func (e *Engine) Prune(ctx context.Context, now time.Time) []*registry.Actor {
	if e.actorTTL <= 0 {
		return nil
	}
	var removed []*registry.Actor
	for _, id := range e.reg.Stale(now.Add(-e.actorTTL)) {
		if a, ok := e.reg.Remove(id); ok {
			removed = append(removed, a)
		}
	}
	if len(removed) > 0 {
		e.dropPairs(removed)
		metrics.RecordActorsEvicted(len(removed))
		metrics.UpdateActiveActors(e.reg.Len())
		e.log.Info(ctx, "evicted silent actors", logger.Int("count", len(removed)))
	}
	return removed
}

func (e *Engine) dropPairs(removed []*registry.Actor) {
	for _, a := range removed {
		pair := a.Cooldown
		if pair == nil {
			continue
		}
		if e.referenced(pair) {
			continue
		}
		e.sched.Cancel(pair.TimerKey())
		e.tracker.End(pair)
	}
	metrics.UpdateActiveCooldowns(e.tracker.Active())
}

func (e *Engine) referenced(pair *cooldown.Pair) bool {
	for _, id := range pair.Members {
		if a, ok := e.reg.Get(id); ok && a.Cooldown == pair {
			return true
		}
	}
	return false
}

// Close cancels every pending cooldown release.
func (e *Engine) Close() {
	for _, p := range e.tracker.All() {
		e.sched.Cancel(p.TimerKey())
	}
	e.tracker.Clear()
	metrics.UpdateActiveCooldowns(0)
}

// Actors returns a sorted snapshot of the registry.
func (e *Engine) Actors() []model.ActorView { return e.reg.Snapshot() }

// Len returns the number of registered actors.
func (e *Engine) Len() int { return e.reg.Len() }

// ActiveCooldowns returns the number of pairs currently cooling down.
func (e *Engine) ActiveCooldowns() int { return e.tracker.Active() }
