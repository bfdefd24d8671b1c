// Package dispatch routes outbound envelopes to the transport that owns the
// recipient's connection.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/roadwatch/internal/domain/model"
)

// Dispatcher delivers an envelope to one connection. Delivery is
// fire-and-forget; an error means the envelope was dropped.
type Dispatcher interface {
	Deliver(ctx context.Context, conn model.Conn, env model.Envelope) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, conn model.Conn, env model.Envelope) error

// Deliver calls f.
func (f DispatcherFunc) Deliver(ctx context.Context, conn model.Conn, env model.Envelope) error {
	return f(ctx, conn, env)
}

// Router picks a Dispatcher by conn.Transport. It is safe for concurrent use.
type Router struct {
	mu     sync.RWMutex
	routes map[string]Dispatcher
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{routes: make(map[string]Dispatcher)}
}

// Handle registers d for a transport, replacing any previous registration.
func (r *Router) Handle(transport string, d Dispatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[transport] = d
}

// Deliver forwards env to the dispatcher registered for conn.Transport.
func (r *Router) Deliver(ctx context.Context, conn model.Conn, env model.Envelope) error {
	r.mu.RLock()
	d, ok := r.routes[conn.Transport]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoRoute, conn.Transport)
	}
	return d.Deliver(ctx, conn, env)
}
