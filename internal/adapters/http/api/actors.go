package api

import (
	"context"
	"net/http"
	"time"

	"github.com/okian/roadwatch/internal/domain/model"
)

const defaultQueryTimeout = 2 * time.Second

// ActorsDependencies reads the registry snapshot.
type ActorsDependencies interface {
	Actors(ctx context.Context) ([]model.ActorView, error)
}

// ActorsHandler handles actor listing requests.
type ActorsHandler struct {
	deps    ActorsDependencies
	timeout time.Duration
}

// NewActorsHandler creates a new actors handler.
func NewActorsHandler(deps ActorsDependencies) *ActorsHandler {
	return &ActorsHandler{deps: deps, timeout: defaultQueryTimeout}
}

type actorsResponse struct {
	Count  int               `json:"count"`
	Actors []model.ActorView `json:"actors"`
}

// HandleGetActors handles GET /actors requests.
func (h *ActorsHandler) HandleGetActors(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_actors"
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	views, err := h.deps.Actors(ctx)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	if views == nil {
		views = []model.ActorView{}
	}
	writeJSON(w, http.StatusOK, actorsResponse{Count: len(views), Actors: views})
}
