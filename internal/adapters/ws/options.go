package ws

import (
	"time"

	"github.com/okian/roadwatch/pkg/logger"
)

const (
	defaultSendBuffer   = 64
	defaultWriteWait    = 10 * time.Second
	defaultPongWait     = 60 * time.Second
	defaultMaxFrameSize = 4 << 20
)

// Option configures a Hub.
type Option func(*Hub)

// WithSendBuffer sets the per-connection outbound buffer.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithPongWait sets how long a silent peer is kept. Pings are sent at 9/10
// of this interval.
func WithPongWait(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pongWait = d
		}
	}
}

// WithMaxMessageSize caps inbound message size; frames are the largest.
func WithMaxMessageSize(n int64) Option {
	return func(h *Hub) {
		if n > 0 {
			h.maxMessageSize = n
		}
	}
}

// WithLogger sets the hub logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}
