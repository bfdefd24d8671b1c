// Package queue carries commands from the transports to the event loop.
//
// The queue is the only backpressure point in the service: enqueueing never
// blocks and fails with ErrFull once capacity is reached.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/roadwatch/internal/domain/model"
	"github.com/okian/roadwatch/pkg/metrics"
)

const defaultQueueCapacity = 10000

// Kind identifies what a command asks the loop to do.
type Kind string

// Command kinds.
const (
	KindReport     Kind = "report"
	KindDisconnect Kind = "disconnect"
	KindFrame      Kind = "frame"
	KindQuery      Kind = "query"
	KindPrune      Kind = "prune"
)

// Command is a unit of work for the event loop. Which fields are set
// depends on Kind.
type Command struct {
	Kind Kind
	Conn model.Conn

	// KindReport
	Report model.PositionReport

	// KindFrame
	ActorID string
	Image   []byte

	// KindQuery runs Run on the loop goroutine.
	Run func(ctx context.Context)

	// KindPrune
	Now time.Time

	EnqueuedAt time.Time
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a command. It returns ErrFull or ErrClosed instead of blocking.
	Enqueue(ctx context.Context, c Command) error

	// Dequeue returns the channel the loop reads from. It is closed by Close.
	Dequeue() <-chan Command

	Len() int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	commands chan Command
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.commands = make(chan Command, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)
	return q
}

// Enqueue adds a command to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, c Command) error { //nolint:gocritic // hugeParam: commands travel by value
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return err
	}
	if c.EnqueuedAt.IsZero() {
		c.EnqueuedAt = time.Now()
	}

	select {
	case q.commands <- c:
		metrics.RecordQueueEnqueue()
		q.observe()
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns the receive side of the queue.
func (q *InMemoryQueue) Dequeue() <-chan Command {
	return q.commands
}

// Len returns the current number of queued commands.
func (q *InMemoryQueue) Len() int {
	return q.observe()
}

func (q *InMemoryQueue) observe() int {
	size := len(q.commands)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
	return size
}

// Cap returns the queue capacity.
func (q *InMemoryQueue) Cap() int { return q.capacity }

// Close stops accepting commands. Commands already queued can still be drained.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.commands)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
