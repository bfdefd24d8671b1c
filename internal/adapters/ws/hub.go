// Package ws is the websocket transport. Every socket is one model.Conn;
// inbound messages become loop commands and outbound envelopes are written
// by a per-connection writer goroutine.
package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/okian/roadwatch/internal/adapters/mq/queue"
	"github.com/okian/roadwatch/internal/domain/model"
	"github.com/okian/roadwatch/internal/schema"
	"github.com/okian/roadwatch/pkg/logger"
	"github.com/okian/roadwatch/pkg/metrics"
)

// Message types accepted from clients.
const (
	TypeUpdate = "update"
	TypeFrame  = "frame"
)

// Submitter hands websocket traffic to the event loop.
type Submitter interface {
	SubmitReport(ctx context.Context, conn model.Conn, rep model.PositionReport) error
	SubmitFrame(ctx context.Context, conn model.Conn, actorID string, image []byte) error
	SubmitDisconnect(ctx context.Context, conn model.Conn) error
}

// ErrorMessage is sent back for a message that was dropped.
type ErrorMessage struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

type frameMessage struct {
	ID    string `json:"id"`
	Image string `json:"image"`
}

// Hub owns every open websocket.
type Hub struct {
	upgrader websocket.Upgrader
	submit   Submitter
	reports  *schema.Validator
	frames   *schema.Validator
	log      logger.Logger

	sendBuffer     int
	writeWait      time.Duration
	pongWait       time.Duration
	maxMessageSize int64

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
	wg      sync.WaitGroup
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) stop() { c.once.Do(func() { close(c.done) }) }

// NewHub creates a hub submitting to submit.
func NewHub(submit Submitter, opts ...Option) (*Hub, error) {
	reports, err := schema.NewReportValidator()
	if err != nil {
		return nil, err
	}
	frames, err := schema.NewFrameValidator()
	if err != nil {
		return nil, err
	}
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		submit:         submit,
		reports:        reports,
		frames:         frames,
		log:            logger.Noop(),
		sendBuffer:     defaultSendBuffer,
		writeWait:      defaultWriteWait,
		pongWait:       defaultPongWait,
		maxMessageSize: defaultMaxFrameSize,
		clients:        make(map[string]*client),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ServeHTTP upgrades the request and serves the socket until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		metrics.RecordErrorByComponent("ws", "upgrade")
		h.log.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: ws,
		send: make(chan []byte, h.sendBuffer),
		done: make(chan struct{}),
	}
	if !h.register(c) {
		_ = ws.Close()
		return
	}

	ctx := context.WithoutCancel(r.Context())
	h.log.Debug(ctx, "websocket connected", logger.String("conn", c.id), logger.String("remote", ws.RemoteAddr().String()))

	go func() {
		defer h.wg.Done()
		h.writePump(c)
	}()

	h.readPump(ctx, c)

	h.unregister(c)
	conn := model.Conn{Transport: model.TransportWS, ID: c.id}
	if err := h.submit.SubmitDisconnect(ctx, conn); err != nil {
		h.log.Warn(ctx, "disconnect not submitted", logger.String("conn", c.id), logger.Error(err))
	}
	h.log.Debug(ctx, "websocket disconnected", logger.String("conn", c.id))
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	// Counted under the lock so Close either sees this writer or refuses it.
	h.wg.Add(1)
	metrics.UpdateWebsocketConnections(len(h.clients))
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	metrics.UpdateWebsocketConnections(len(h.clients))
	h.mu.Unlock()
	c.stop()
}

func (h *Hub) readPump(ctx context.Context, c *client) {
	c.conn.SetReadLimit(h.maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug(ctx, "websocket read ended", logger.String("conn", c.id), logger.Error(err))
			}
			return
		}
		if err := h.handleMessage(ctx, c, data); err != nil {
			h.reply(c, err)
		}
	}
}

func (h *Hub) handleMessage(ctx context.Context, c *client, data []byte) error {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		metrics.RecordReportRejected("decode")
		return fmt.Errorf("%w: %w", schema.ErrInvalidJSON, err)
	}
	conn := model.Conn{Transport: model.TransportWS, ID: c.id}

	switch head.Type {
	case TypeUpdate:
		if err := h.reports.ValidateBytes(data); err != nil {
			metrics.RecordReportRejected("schema")
			return err
		}
		var rep model.PositionReport
		if err := json.Unmarshal(data, &rep); err != nil {
			return err
		}
		return h.submit.SubmitReport(ctx, conn, rep)

	case TypeFrame:
		if err := h.frames.ValidateBytes(data); err != nil {
			return err
		}
		var f frameMessage
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		image, err := base64.StdEncoding.DecodeString(f.Image)
		if err != nil {
			return err
		}
		return h.submit.SubmitFrame(ctx, conn, f.ID, image)

	default:
		metrics.RecordReportRejected("unknown_type")
		return fmt.Errorf("unknown message type %q", head.Type)
	}
}

// reply queues an error message for the client; it is dropped if the
// buffer is full.
func (h *Hub) reply(c *client, cause error) {
	msg := ErrorMessage{Kind: "error", Error: cause.Error()}
	if errors.Is(cause, queue.ErrFull) {
		msg.Error = "server busy"
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				metrics.RecordErrorByComponent("ws", "write")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.writeWait))
			return
		}
	}
}

// Deliver queues the envelope's event for the connection. It never blocks:
// a full buffer is reported as ErrSendBufferFull and the event is dropped.
func (h *Hub) Deliver(_ context.Context, conn model.Conn, env model.Envelope) error {
	h.mu.RLock()
	c, ok := h.clients[conn.ID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, conn.ID)
	}

	data, err := json.Marshal(env.Event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", env.Event.EventKind(), err)
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return fmt.Errorf("%w: %s", ErrUnknownConnection, conn.ID)
	default:
		return ErrSendBufferFull
	}
}

// Len returns the number of open connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close closes every connection and waits for the writers to exit.
// Connections arriving afterwards are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.stop()
	}
	h.wg.Wait()
}
