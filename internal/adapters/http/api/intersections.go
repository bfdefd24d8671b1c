package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/roadwatch/internal/domain/spatial"
)

const maxQueryLimit = 100

// IntersectionsDependencies queries and reloads the intersection index.
type IntersectionsDependencies interface {
	Nearby(lat, lon, radius float64, limit int) ([]spatial.Match, error)
	Nearest(lat, lon float64, k int) ([]spatial.Match, error)
	ReloadIndex(ctx context.Context) (int, error)
}

// IntersectionsHandler handles intersection index requests.
type IntersectionsHandler struct {
	deps     IntersectionsDependencies
	maxLimit int
}

// NewIntersectionsHandler creates a new intersections handler.
func NewIntersectionsHandler(deps IntersectionsDependencies, maxLimit int) *IntersectionsHandler {
	if maxLimit <= 0 {
		maxLimit = maxQueryLimit
	}
	return &IntersectionsHandler{deps: deps, maxLimit: maxLimit}
}

type matchesResponse struct {
	Count   int             `json:"count"`
	Matches []spatial.Match `json:"matches"`
}

type reloadResponse struct {
	Points int `json:"points"`
}

// HandleNearby handles GET /intersections/nearby?lat=&lon=&radius=&limit=.
// radius and limit are optional. Without radius the configured default applies.
func (h *IntersectionsHandler) HandleNearby(w http.ResponseWriter, r *http.Request) {
	const op = "api.intersections_nearby"
	q := r.URL.Query()
	lat, lon, err := parseLatLon(q.Get("lat"), q.Get("lon"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	// A negative radius asks the service for its configured default; an
	// explicit radius=0 is passed through and matches coincident points only.
	radius := -1.0
	if q.Has("radius") {
		radius, err = strconv.ParseFloat(q.Get("radius"), 64)
		if err != nil || radius < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, fmt.Errorf("%w: radius", ErrBadRequest)))
			return
		}
	}
	limit, err := h.limit(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	matches, err := h.deps.Nearby(lat, lon, radius, limit)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, matchesResponse{Count: len(matches), Matches: matches})
}

// HandleNearest handles GET /intersections/nearest?lat=&lon=&k=.
func (h *IntersectionsHandler) HandleNearest(w http.ResponseWriter, r *http.Request) {
	const op = "api.intersections_nearest"
	q := r.URL.Query()
	lat, lon, err := parseLatLon(q.Get("lat"), q.Get("lon"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	k, err := h.limit(q.Get("k"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if k == 0 {
		k = 1
	}

	matches, err := h.deps.Nearest(lat, lon, k)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, matchesResponse{Count: len(matches), Matches: matches})
}

// HandleReload handles POST /intersections/reload.
func (h *IntersectionsHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	const op = "api.intersections_reload"
	n, err := h.deps.ReloadIndex(r.Context())
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, reloadResponse{Points: n})
}

// limit parses an optional positive count capped at maxLimit. Absent is 0.
func (h *IntersectionsHandler) limit(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, h.maxLimit), nil
}

func parseLatLon(latStr, lonStr string) (lat, lon float64, err error) {
	if latStr == "" || lonStr == "" {
		return 0, 0, errors.New("lat and lon are required")
	}
	if lat, err = strconv.ParseFloat(latStr, 64); err != nil {
		return 0, 0, fmt.Errorf("lat: %w", err)
	}
	if lon, err = strconv.ParseFloat(lonStr, 64); err != nil {
		return 0, 0, fmt.Errorf("lon: %w", err)
	}
	return lat, lon, nil
}
