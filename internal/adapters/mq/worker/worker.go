// Package worker runs the event loop: the single goroutine that owns the
// registry, the cooldown state and the intersection state. Commands from the
// queue and fired timer callbacks are both executed here, one at a time.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/roadwatch/internal/adapters/mq/queue"
	"github.com/okian/roadwatch/pkg/logger"
	"github.com/okian/roadwatch/pkg/metrics"
)

const (
	defaultTimerBuffer    = 1024
	metricsUpdateInterval = 5 * time.Second
)

// Handler applies a command to the owned state.
type Handler interface {
	Handle(ctx context.Context, c queue.Command)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, c queue.Command)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, c queue.Command) { f(ctx, c) } //nolint:gocritic // hugeParam

// Source is where the loop reads commands from.
type Source interface {
	Dequeue() <-chan queue.Command
}

// Loop is the event-processing goroutine.
type Loop struct {
	source  Source
	handler Handler
	name    string
	timers  chan func()

	timerBuffer int

	systemMetrics bool

	shutdown chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	logger logger.Logger
}

// NewLoop creates a loop reading from source and applying commands with handler.
func NewLoop(source Source, handler Handler, opts ...Option) *Loop {
	l := &Loop{
		source:   source,
		handler:  handler,
		name:     "loop",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Noop(),

		timerBuffer: defaultTimerBuffer,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.timers = make(chan func(), l.timerBuffer)
	l.logger = l.logger.Named(l.name)
	return l
}

// Post hands a fired timer callback to the loop. It blocks until the loop
// accepts it and drops the callback once the loop has stopped. Post must not
// be called from the loop goroutine itself.
func (l *Loop) Post(fn func()) {
	select {
	case l.timers <- fn:
	case <-l.shutdown:
	case <-l.done:
	}
}

// Run processes commands until ctx is cancelled, Shutdown is called or the
// source is closed.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)

	if l.systemMetrics {
		go l.startMetricsUpdater(ctx)
	}

	commands := l.source.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.shutdown:
			return
		case fn := <-l.timers:
			l.safely(ctx, "timer", fn)
		case c, ok := <-commands:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			l.process(ctx, c)
		}
	}
}

func (l *Loop) process(ctx context.Context, c queue.Command) { //nolint:gocritic // hugeParam
	start := time.Now()
	l.safely(ctx, string(c.Kind), func() { l.handler.Handle(ctx, c) })
	metrics.RecordCommandLatency(string(c.Kind), float64(time.Since(start).Microseconds())/1000)
}

// safely runs fn and turns a panic into a logged error so one bad command
// cannot stop the loop.
func (l *Loop) safely(ctx context.Context, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordErrorByComponent("loop", "panic")
			l.logger.Error(ctx, "recovered panic in event loop",
				logger.String("command", what),
				logger.Error(fmt.Errorf("panic: %v", r)),
			)
		}
	}()
	fn()
}

// Do runs fn on the loop goroutine and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}
	select {
	case l.timers <- wrapped:
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Shutdown stops the loop and waits for it to exit.
func (l *Loop) Shutdown(ctx context.Context) error {
	l.stopOnce.Do(func() { close(l.shutdown) })
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		l.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (l *Loop) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	metrics.UpdateSystemMemoryUsage(ms.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if ms.NumGC > 0 {
		pause := ms.PauseNs[(ms.NumGC+255)%256]
		metrics.RecordSystemGCPauseTime(float64(pause) / float64(time.Millisecond))
	}
}
