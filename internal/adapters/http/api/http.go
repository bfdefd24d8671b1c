// Package api serves the operational HTTP surface: metrics, stats, the
// actor snapshot and intersection queries.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/okian/roadwatch/internal/adapters/mq/queue"
	"github.com/okian/roadwatch/internal/adapters/mq/worker"
	"github.com/okian/roadwatch/internal/adapters/repository"
	service "github.com/okian/roadwatch/internal/app"
	"github.com/okian/roadwatch/internal/domain/model"
	"github.com/okian/roadwatch/internal/domain/spatial"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StatsProvider
	ActorsDependencies
	IntersectionsDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler        *HealthHandler
	statsHandler         *StatsHandler
	actorsHandler        *ActorsHandler
	intersectionsHandler *IntersectionsHandler
	websocket            http.Handler
}

// NewServer creates a new API server with all handlers. websocket serves
// /ws and may be nil.
func NewServer(deps Dependencies, websocket http.Handler) *Server {
	return &Server{
		healthHandler:        NewHealthHandler(),
		statsHandler:         NewStatsHandler(deps),
		actorsHandler:        NewActorsHandler(deps),
		intersectionsHandler: NewIntersectionsHandler(deps, maxQueryLimit),
		websocket:            websocket,
	}
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r *mux.Router) {
	r.Handle("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz")).Methods(http.MethodGet)
	r.Handle("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats")).Methods(http.MethodGet)
	r.Handle("/actors", MetricsMiddleware(s.actorsHandler.HandleGetActors, "actors")).Methods(http.MethodGet)

	ix := r.PathPrefix("/intersections").Subrouter()
	ix.Handle("/nearby", MetricsMiddleware(s.intersectionsHandler.HandleNearby, "intersections_nearby")).Methods(http.MethodGet)
	ix.Handle("/nearest", MetricsMiddleware(s.intersectionsHandler.HandleNearest, "intersections_nearest")).Methods(http.MethodGet)
	ix.Handle("/reload", MetricsMiddleware(s.intersectionsHandler.HandleReload, "intersections_reload")).Methods(http.MethodPost)

	if s.websocket != nil {
		r.Handle("/ws", MetricsMiddleware(s.websocket.ServeHTTP, "ws")).Methods(http.MethodGet)
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure translates an error from the service layer to a response.
func writeFailure(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidCoordinates):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, queue.ErrFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	case errors.Is(err, service.ErrNoIndex), errors.Is(err, service.ErrNoSource),
		errors.Is(err, queue.ErrClosed), errors.Is(err, worker.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	case errors.Is(err, repository.ErrSourceUnreachable), errors.Is(err, repository.ErrMalformedSource),
		errors.Is(err, spatial.ErrInvalidPoint):
		writeError(w, http.StatusBadGateway, "reload_failed", WrapKind(op, ErrReload, err))
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
