package simulate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/roadwatch/internal/domain/geo"
	"github.com/okian/roadwatch/internal/domain/model"
	"github.com/okian/roadwatch/pkg/logger"
)

// Config holds what a simulation run needs.
type Config struct {
	// URL is the service websocket endpoint, e.g. ws://localhost:9080/ws.
	URL      string
	Scenario *Scenario
	Dialer   *websocket.Dialer
	Logger   logger.Logger
}

// Result is what every actor received during a run.
type Result struct {
	Scenario string
	Elapsed  time.Duration
	Sent     int
	Actors   []ActorResult
	Missing  []Expectation
}

// ActorResult is one actor's view of the run.
type ActorResult struct {
	ID            string
	Role          model.Role
	Sent          int
	Alerts        []model.Alert
	Intersections int
	Detections    int
	Errors        []string
}

// AlertsFrom counts alerts about the given actor.
func (a ActorResult) AlertsFrom(id string) int {
	n := 0
	for _, al := range a.Alerts {
		if al.FromID == id {
			n++
		}
	}
	return n
}

// Passed reports whether every expected alert arrived.
func (r *Result) Passed() bool { return len(r.Missing) == 0 }

type updateMessage struct {
	Type      string  `json:"type"`
	ID        string  `json:"id"`
	Role      string  `json:"role"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type participant struct {
	actor Actor
	role  model.Role
	pos   model.Position
	conn  *websocket.Conn

	mu  sync.Mutex
	res ActorResult
}

func (p *participant) record(data []byte) {
	var head struct {
		Kind  string `json:"kind"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch head.Kind {
	case model.KindAlert:
		var a model.Alert
		if err := json.Unmarshal(data, &a); err == nil {
			p.res.Alerts = append(p.res.Alerts, a)
		}
	case model.KindIntersection:
		p.res.Intersections++
	case model.KindDetection:
		p.res.Detections++
	case "error":
		p.res.Errors = append(p.res.Errors, head.Error)
	}
}

func (p *participant) snapshot() ActorResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.res
	out.Alerts = append([]model.Alert(nil), p.res.Alerts...)
	out.Errors = append([]string(nil), p.res.Errors...)
	return out
}

// Run connects one websocket per actor, moves the actors for the scenario's
// steps and collects what the service pushes back. The returned error wraps
// ErrExpectationsFailed when an expected alert is missing; the result is
// still returned in that case.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Scenario == nil {
		cfg.Scenario = BuiltIn()
	}
	if err := cfg.Scenario.Validate(); err != nil {
		return nil, err
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Get()
	}
	sc := cfg.Scenario
	log := cfg.Logger

	parts := make([]*participant, 0, len(sc.Actors))
	defer func() {
		for _, p := range parts {
			_ = p.conn.Close()
		}
	}()
	for _, a := range sc.Actors {
		role, _ := model.ParseRole(a.Role)
		conn, resp, err := cfg.Dialer.DialContext(ctx, cfg.URL, http.Header{})
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			return nil, fmt.Errorf("dial %s for %s: %w", cfg.URL, a.ID, err)
		}
		parts = append(parts, &participant{
			actor: a,
			role:  role,
			pos:   model.Position{Latitude: a.Latitude, Longitude: a.Longitude},
			conn:  conn,
			res:   ActorResult{ID: a.ID, Role: role},
		})
	}
	log.Info(ctx, "simulation connected",
		logger.String("scenario", sc.Name),
		logger.Int("actors", len(parts)),
		logger.String("url", cfg.URL))

	var readers sync.WaitGroup
	for _, p := range parts {
		readers.Add(1)
		go func(p *participant) {
			defer readers.Done()
			for {
				_, data, err := p.conn.ReadMessage()
				if err != nil {
					return
				}
				p.record(data)
			}
		}(p)
	}

	start := time.Now()
	sent, err := drive(ctx, sc, parts)
	if err != nil {
		closeAll(parts)
		readers.Wait()
		return nil, err
	}

	select {
	case <-time.After(sc.Settle):
	case <-ctx.Done():
	}
	closeAll(parts)
	readers.Wait()

	res := &Result{Scenario: sc.Name, Elapsed: time.Since(start), Sent: sent}
	byID := make(map[string]ActorResult, len(parts))
	for _, p := range parts {
		ar := p.snapshot()
		res.Actors = append(res.Actors, ar)
		byID[ar.ID] = ar
	}
	sort.Slice(res.Actors, func(i, j int) bool { return res.Actors[i].ID < res.Actors[j].ID })
	for _, e := range sc.Expect {
		if byID[e.Recipient].AlertsFrom(e.From) == 0 {
			res.Missing = append(res.Missing, e)
		}
	}

	log.Info(ctx, "simulation finished",
		logger.Int("sent", sent),
		logger.Int("missing", len(res.Missing)),
		logger.Duration("elapsed", res.Elapsed))
	if !res.Passed() {
		return res, fmt.Errorf("%w: %d of %d", ErrExpectationsFailed, len(res.Missing), len(sc.Expect))
	}
	return res, nil
}

// drive sends one update per actor per tick, advancing each actor along its
// bearing between ticks.
func drive(ctx context.Context, sc *Scenario, parts []*participant) (int, error) {
	ticker := time.NewTicker(sc.Tick)
	defer ticker.Stop()

	sent := 0
	for step := 0; step < sc.Steps; step++ {
		for _, p := range parts {
			msg := updateMessage{
				Type:      "update",
				ID:        p.actor.ID,
				Role:      string(p.role),
				Latitude:  p.pos.Latitude,
				Longitude: p.pos.Longitude,
			}
			if err := p.conn.WriteJSON(msg); err != nil {
				return sent, fmt.Errorf("send update for %s: %w", p.actor.ID, err)
			}
			p.mu.Lock()
			p.res.Sent++
			p.mu.Unlock()
			sent++
			p.pos = geo.Destination(p.pos, p.actor.Bearing, p.actor.Speed*sc.Step.Seconds())
		}
		if step == sc.Steps-1 {
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return sent, ctx.Err()
		}
	}
	return sent, nil
}

func closeAll(parts []*participant) {
	for _, p := range parts {
		err := p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			_ = p.conn.Close()
			continue
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(time.Second))
	}
}
