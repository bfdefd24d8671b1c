// Package service composes the proximity engine, the intersection service and
// the transports into one runnable unit, and implements the dependencies the
// HTTP API and the transports need.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/roadwatch/internal/adapters/dispatch"
	"github.com/okian/roadwatch/internal/adapters/mq/kafka"
	"github.com/okian/roadwatch/internal/adapters/mq/queue"
	"github.com/okian/roadwatch/internal/adapters/mq/worker"
	"github.com/okian/roadwatch/internal/adapters/repository"
	"github.com/okian/roadwatch/internal/adapters/ws"
	"github.com/okian/roadwatch/internal/config"
	"github.com/okian/roadwatch/internal/domain/classify"
	"github.com/okian/roadwatch/internal/domain/cooldown"
	"github.com/okian/roadwatch/internal/domain/dedupe"
	"github.com/okian/roadwatch/internal/domain/intersection"
	"github.com/okian/roadwatch/internal/domain/model"
	"github.com/okian/roadwatch/internal/domain/proximity"
	"github.com/okian/roadwatch/internal/domain/registry"
	"github.com/okian/roadwatch/internal/domain/spatial"
	"github.com/okian/roadwatch/internal/schema"
	"github.com/okian/roadwatch/pkg/logger"
	"github.com/okian/roadwatch/pkg/metrics"
)

const (
	shutdownTimeout   = 10 * time.Second
	disconnectTimeout = 5 * time.Second
	disconnectRetry   = 10 * time.Millisecond
)

// Service owns every component of a running instance.
type Service struct {
	cfg *config.Config
	log logger.Logger

	queue         *queue.InMemoryQueue
	loop          *worker.Loop
	sched         *cooldown.TimerScheduler
	reg           *registry.Registry
	engine        *proximity.Engine
	index         spatial.Holder
	intersections *intersection.Service
	classifier    classify.Classifier
	router        *dispatch.Router
	hub           *ws.Hub
	source        repository.Source

	consumer  *kafka.ReportConsumer
	publisher *kafka.AlertPublisher

	routes map[string]dispatch.Dispatcher

	mu       sync.Mutex
	started  bool
	stopped  bool
	cancelBG context.CancelFunc
	bg       sync.WaitGroup
	loopWG   sync.WaitGroup

	reloadMu      sync.Mutex
	indexLoadedAt atomic.Int64

	// Written by the loop after each command, read by Stats.
	actors    atomic.Int64
	cooldowns atomic.Int64
	tracked   atomic.Int64
	near      atomic.Int64

	accepted atomic.Int64
	rejected atomic.Int64
	dropped  atomic.Int64
	gated    atomic.Int64
	busy     atomic.Int64
}

// New wires a service from cfg. Nothing runs until Start.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.New()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	roles, err := cfg.Roles()
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:    cfg,
		log:    logger.Noop(),
		routes: make(map[string]dispatch.Dispatcher),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(cfg.QueueSize))
	s.loop = worker.NewLoop(s.queue, s,
		worker.WithName("loop"),
		worker.WithLogger(s.log),
		worker.WithSystemMetrics(),
	)
	s.sched = cooldown.NewTimerScheduler(s.loop.Post)
	s.router = dispatch.NewRouter()
	s.reg = registry.New()

	s.engine = proximity.New(s.reg, s.sched, s.router,
		proximity.WithAlertDistance(cfg.AlertDistanceMeters),
		proximity.WithCooldown(cfg.Cooldown()),
		proximity.WithActorTTL(cfg.ActorTTL()),
		proximity.WithLogger(s.log.Named("proximity")),
	)

	if s.classifier == nil {
		s.classifier = newClassifier(cfg)
	}
	s.intersections = intersection.New(&s.index, s.sched, s.router, s.classifier,
		intersection.WithRoles(roles...),
		intersection.WithRadius(cfg.IntersectionRadiusMeters),
		intersection.WithDebounce(cfg.IntersectionDebounce()),
		intersection.WithMaxResults(cfg.IntersectionMaxResults),
		intersection.WithClassifyTimeout(cfg.ClassifierTimeout()),
		intersection.WithPost(s.loop.Post),
		intersection.WithLogger(s.log.Named("intersection")),
	)

	s.hub, err = ws.NewHub(s,
		ws.WithSendBuffer(cfg.SendBuffer),
		ws.WithLogger(s.log.Named("ws")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create websocket hub: %w", err)
	}
	s.router.Handle(model.TransportWS, s.hub)

	if s.source == nil && cfg.POISource != "" {
		s.source, err = repository.NewSource(cfg.POISource,
			repository.WithIDProperty(cfg.POIIDProperty),
			repository.WithDescriptionProperty(cfg.POIDescriptionProperty),
			repository.WithMinIO(repository.MinIOConfig{
				Endpoint:  cfg.MinIOEndpoint,
				AccessKey: cfg.MinIOAccessKey,
				SecretKey: cfg.MinIOSecretKey,
				UseSSL:    cfg.MinIOUseSSL,
				Region:    cfg.MinIORegion,
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("poi source: %w", err)
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		if err := s.initKafka(); err != nil {
			return nil, err
		}
	}

	for transport, d := range s.routes {
		s.router.Handle(transport, d)
	}
	return s, nil
}

func newClassifier(cfg *config.Config) classify.Classifier {
	if cfg.ClassifierURL != "" {
		return classify.NewHTTPClassifier(cfg.ClassifierURL, cfg.ClassifierLabel, cfg.ClassifierTimeout())
	}
	return classify.NewSimulatedClassifier(
		classify.WithLabel(cfg.ClassifierLabel),
		classify.WithLatencyRange(
			time.Duration(cfg.ClassifierLatencyMinMS)*time.Millisecond,
			time.Duration(cfg.ClassifierLatencyMaxMS)*time.Millisecond,
		),
	)
}

func (s *Service) initKafka() error {
	reader, err := kafka.NewReader(kafka.ReaderConfig{
		Brokers: s.cfg.KafkaBrokers,
		Topic:   s.cfg.KafkaReportsTopic,
		GroupID: s.cfg.KafkaGroupID,
	})
	if err != nil {
		return fmt.Errorf("kafka reader: %w", err)
	}
	writer, err := kafka.NewWriter(kafka.WriterConfig{
		Brokers: s.cfg.KafkaBrokers,
		Topic:   s.cfg.KafkaAlertsTopic,
	}, s.log.Named("kafka"))
	if err != nil {
		_ = reader.Close()
		return fmt.Errorf("kafka writer: %w", err)
	}
	validator, err := schema.NewReportValidator()
	if err != nil {
		_ = reader.Close()
		_ = writer.Close()
		return err
	}

	s.consumer = kafka.NewReportConsumer(reader, s,
		kafka.WithDeduper(dedupe.NewInMemoryDeduper()),
		kafka.WithValidator(validator),
		kafka.WithConsumerLogger(s.log.Named("kafka.consumer")),
	)
	s.publisher = kafka.NewAlertPublisher(writer, kafka.WithPublisherLogger(s.log.Named("kafka.publisher")))
	s.router.Handle(model.TransportKafka, s.publisher)
	return nil
}

// Start loads the intersection index and starts the loop and the background
// producers. A failed index load is logged and the service runs without it.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.stopped {
		return ErrStopped
	}

	s.log.Info(ctx, "starting roadwatch service...")

	if s.source != nil {
		if _, err := s.ReloadIndex(ctx); err != nil {
			s.log.Warn(ctx, "starting without intersection index", logger.Error(err))
		}
	}

	s.loopWG.Add(1)
	go func() {
		defer s.loopWG.Done()
		s.loop.Run(ctx)
	}()

	bgCtx, cancel := context.WithCancel(ctx)
	s.cancelBG = cancel

	if ttl, every := s.cfg.ActorTTL(), s.cfg.PruneInterval(); ttl > 0 && every > 0 {
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			s.pruneEvery(bgCtx, every)
		}()
	}

	if s.consumer != nil {
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			if err := s.consumer.Run(bgCtx); err != nil {
				s.log.Error(bgCtx, "kafka consumer stopped", logger.Error(err))
			}
		}()
	}

	s.started = true
	s.log.Info(ctx, "roadwatch service started",
		logger.Int("queueSize", s.queue.Cap()),
		logger.Float64("alertDistanceMeters", s.cfg.AlertDistanceMeters),
		logger.Duration("cooldown", s.cfg.Cooldown()),
		logger.Bool("kafka", s.consumer != nil),
		logger.Int("indexPoints", s.index.Load().Len()),
	)
	return nil
}

func (s *Service) pruneEvery(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			err := s.queue.Enqueue(ctx, queue.Command{Kind: queue.KindPrune, Now: now})
			if err != nil && !errors.Is(err, queue.ErrFull) {
				return
			}
		}
	}
}

// Stop closes the transports, cancels pending timers, stops the loop and
// waits for running classifications. It is safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.stopped = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.log.Info(ctx, "stopping roadwatch service...")

	s.hub.Close()
	s.cancelBG()
	s.bg.Wait()
	if s.consumer != nil {
		if err := s.consumer.Close(); err != nil {
			s.log.Warn(ctx, "kafka reader close failed", logger.Error(err))
		}
	}

	if err := s.loop.Do(ctx, s.engine.Close); err != nil {
		s.log.Debug(ctx, "engine not closed on loop", logger.Error(err))
	}
	if err := s.loop.Shutdown(ctx); err != nil {
		s.log.Warn(ctx, "event loop shutdown", logger.Error(err))
	}
	s.sched.Stop()
	s.intersections.Wait()

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.log.Warn(ctx, "kafka writer close failed", logger.Error(err))
		}
	}
	_ = s.queue.Close()
	s.loopWG.Wait()

	s.log.Info(ctx, "roadwatch service stopped")
}

// Handle applies one command. It runs on the loop goroutine only.
func (s *Service) Handle(ctx context.Context, c queue.Command) { //nolint:gocritic // hugeParam
	switch c.Kind {
	case queue.KindReport:
		a, err := s.engine.Report(ctx, c.Conn, c.Report)
		if err != nil {
			s.rejected.Add(1)
			break
		}
		s.accepted.Add(1)
		s.intersections.Update(ctx, a)

	case queue.KindDisconnect:
		for _, a := range s.engine.Disconnect(ctx, c.Conn) {
			s.intersections.Forget(a.ID)
		}

	case queue.KindFrame:
		s.handleFrame(ctx, c)

	case queue.KindPrune:
		now := c.Now
		if now.IsZero() {
			now = time.Now()
		}
		for _, a := range s.engine.Prune(ctx, now) {
			s.intersections.Forget(a.ID)
		}

	case queue.KindQuery:
		if c.Run != nil {
			c.Run(ctx)
		}

	default:
		s.log.Warn(ctx, "unknown command", logger.String("kind", string(c.Kind)))
	}

	s.actors.Store(int64(s.engine.Len()))
	s.cooldowns.Store(int64(s.engine.ActiveCooldowns()))
	s.tracked.Store(int64(s.intersections.Tracked()))
	s.near.Store(int64(s.intersections.Near()))
	metrics.UpdateActiveCooldowns(s.engine.ActiveCooldowns())
}

// handleFrame accepts a frame only from the connection the actor reports on.
func (s *Service) handleFrame(ctx context.Context, c queue.Command) { //nolint:gocritic // hugeParam
	a, ok := s.reg.Get(c.ActorID)
	if !ok || a.Conn != c.Conn {
		s.gated.Add(1)
		metrics.RecordFrameGated()
		s.log.Debug(ctx, "frame from unknown actor", logger.String("actor_id", c.ActorID), logger.String("conn", c.Conn.String()))
		return
	}
	err := s.intersections.Classify(ctx, c.ActorID, c.Image)
	switch {
	case err == nil:
	case errors.Is(err, intersection.ErrGated):
		s.gated.Add(1)
	case errors.Is(err, intersection.ErrBusy):
		s.busy.Add(1)
	default:
		s.log.Debug(ctx, "frame dropped", logger.String("actor_id", c.ActorID), logger.Error(err))
	}
}

func (s *Service) enqueue(ctx context.Context, c queue.Command) error { //nolint:gocritic // hugeParam
	err := s.queue.Enqueue(ctx, c)
	if errors.Is(err, queue.ErrFull) {
		s.dropped.Add(1)
	}
	return err
}

// SubmitReport queues a position report. It fails with queue.ErrFull under
// backpressure.
func (s *Service) SubmitReport(ctx context.Context, conn model.Conn, rep model.PositionReport) error {
	return s.enqueue(ctx, queue.Command{Kind: queue.KindReport, Conn: conn, Report: rep})
}

// SubmitFrame queues a camera frame for the actor.
func (s *Service) SubmitFrame(ctx context.Context, conn model.Conn, actorID string, image []byte) error {
	return s.enqueue(ctx, queue.Command{Kind: queue.KindFrame, Conn: conn, ActorID: actorID, Image: image})
}

// SubmitDisconnect queues the removal of every actor on conn. A full queue
// is retried for a while since a lost disconnect leaves stale actors behind.
func (s *Service) SubmitDisconnect(ctx context.Context, conn model.Conn) error {
	ctx, cancel := context.WithTimeout(ctx, disconnectTimeout)
	defer cancel()

	c := queue.Command{Kind: queue.KindDisconnect, Conn: conn}
	for {
		err := s.queue.Enqueue(ctx, c)
		if !errors.Is(err, queue.ErrFull) {
			return err
		}
		select {
		case <-ctx.Done():
			s.dropped.Add(1)
			return fmt.Errorf("disconnect %s: %w", conn, ctx.Err())
		case <-time.After(disconnectRetry):
		}
	}
}

// Actors returns a snapshot of the registry taken on the loop.
func (s *Service) Actors(ctx context.Context) ([]model.ActorView, error) {
	var views []model.ActorView
	done := make(chan struct{})
	err := s.enqueue(ctx, queue.Command{Kind: queue.KindQuery, Run: func(context.Context) {
		views = s.engine.Actors()
		close(done)
	}})
	if err != nil {
		return nil, err
	}
	select {
	case <-done:
		return views, nil
	case <-s.loop.Done():
		return nil, worker.ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ReloadIndex rebuilds the intersection index from the configured source.
// On failure the previous index stays in place.
func (s *Service) ReloadIndex(ctx context.Context) (int, error) {
	if s.source == nil {
		return 0, ErrNoSource
	}
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	start := time.Now()
	points, err := s.source.Load(ctx)
	if err != nil {
		metrics.RecordIndexLoadError()
		s.log.Warn(ctx, "intersection source load failed", logger.String("source", s.source.String()), logger.Error(err))
		return 0, err
	}
	idx, err := spatial.Build(points)
	if err != nil {
		metrics.RecordIndexLoadError()
		s.log.Warn(ctx, "intersection index build failed", logger.String("source", s.source.String()), logger.Error(err))
		return 0, err
	}
	s.index.Store(idx)
	s.indexLoadedAt.Store(time.Now().UnixNano())

	elapsed := time.Since(start)
	metrics.UpdateIndexPoints(idx.Len())
	metrics.RecordIndexLoadDuration(float64(elapsed.Microseconds()) / 1000)
	s.log.Info(ctx, "intersection index loaded",
		logger.String("source", s.source.String()),
		logger.Int("points", idx.Len()),
		logger.Duration("took", elapsed),
	)
	return idx.Len(), nil
}

// Nearby returns the indexed points within radius meters of (lat, lon).
// A negative radius and a non-positive limit fall back to the configured
// values. A zero radius matches only points at (lat, lon).
func (s *Service) Nearby(lat, lon, radius float64, limit int) ([]spatial.Match, error) {
	if !(model.Position{Latitude: lat, Longitude: lon}).Valid() {
		return nil, fmt.Errorf("%w: (%v, %v)", model.ErrInvalidCoordinates, lat, lon)
	}
	idx := s.index.Load()
	if idx == nil {
		return nil, ErrNoIndex
	}
	if radius < 0 {
		radius = s.cfg.IntersectionRadiusMeters
	}
	if limit <= 0 {
		limit = s.cfg.IntersectionMaxResults
	}
	matches := idx.QueryRadius(lat, lon, radius, limit)
	if matches == nil {
		matches = []spatial.Match{}
	}
	return matches, nil
}

// Nearest returns the k indexed points closest to (lat, lon).
func (s *Service) Nearest(lat, lon float64, k int) ([]spatial.Match, error) {
	if !(model.Position{Latitude: lat, Longitude: lon}).Valid() {
		return nil, fmt.Errorf("%w: (%v, %v)", model.ErrInvalidCoordinates, lat, lon)
	}
	idx := s.index.Load()
	if idx == nil {
		return nil, ErrNoIndex
	}
	matches := idx.Nearest(lat, lon, k)
	if matches == nil {
		matches = []spatial.Match{}
	}
	return matches, nil
}

// Hub returns the websocket hub served on /ws.
func (s *Service) Hub() *ws.Hub { return s.hub }

// Stats returns counters for monitoring. It never touches loop-owned state.
func (s *Service) Stats() map[string]any {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	stats := map[string]any{
		"started":                started,
		"actors":                 s.actors.Load(),
		"activeCooldowns":        s.cooldowns.Load(),
		"intersectionTracked":    s.tracked.Load(),
		"intersectionNear":       s.near.Load(),
		"reportsAccepted":        s.accepted.Load(),
		"reportsRejected":        s.rejected.Load(),
		"commandsDropped":        s.dropped.Load(),
		"framesGated":            s.gated.Load(),
		"framesBusy":             s.busy.Load(),
		"queueLength":            s.queue.Len(),
		"queueCapacity":          s.queue.Cap(),
		"websocketConnections":   s.hub.Len(),
		"indexPoints":            s.index.Load().Len(),
		"alertDistanceMeters":    s.cfg.AlertDistanceMeters,
		"cooldownMs":             s.cfg.CooldownMS,
		"intersectionRadiusM":    s.cfg.IntersectionRadiusMeters,
		"kafkaEnabled":           s.consumer != nil,
		"pendingTimers":          s.sched.Pending(),
		"intersectionDebounceMs": s.cfg.IntersectionDebounceMS,
	}
	if s.source != nil {
		stats["indexSource"] = s.source.String()
	}
	if ns := s.indexLoadedAt.Load(); ns > 0 {
		stats["indexLoadedAt"] = time.Unix(0, ns).UTC()
	}
	return stats
}
