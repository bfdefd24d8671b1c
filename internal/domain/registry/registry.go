// Package registry keeps the latest known state of every reporting actor.
//
// A Registry is owned by the event loop and is not safe for concurrent use.
package registry

import (
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/okian/roadwatch/internal/domain/cooldown"
	"github.com/okian/roadwatch/internal/domain/model"
)

// Actor is the live record for one reporting participant.
type Actor struct {
	ID       string
	Role     model.Role
	Position model.Position
	Conn     model.Conn
	LastSeen time.Time
	// Cooldown is shared with the partner actor while the pair is cooling down.
	Cooldown *cooldown.Pair
}

// InCooldown reports whether the actor is currently in a cooldown pair.
func (a *Actor) InCooldown() bool { return a.Cooldown != nil }

// View copies the actor into a read-only value.
func (a *Actor) View() model.ActorView {
	return model.ActorView{
		ID:         a.ID,
		Role:       a.Role,
		Latitude:   a.Position.Latitude,
		Longitude:  a.Position.Longitude,
		Transport:  a.Conn.Transport,
		InCooldown: a.InCooldown(),
		LastSeen:   a.LastSeen,
	}
}

// Registry maps actor ids to their records, with a secondary index by connection.
type Registry struct {
	actors map[string]*Actor
	byConn map[model.Conn]map[string]struct{}
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		actors: make(map[string]*Actor),
		byConn: make(map[model.Conn]map[string]struct{}),
	}
}

// Upsert creates the actor or refreshes its position, connection and
// last-seen time. The cooldown is never touched. A report for an existing
// id with a different role is rejected without changing anything.
func (r *Registry) Upsert(id string, role model.Role, pos model.Position, conn model.Conn, at time.Time) (*Actor, error) {
	if a, ok := r.actors[id]; ok {
		if a.Role != role {
			return nil, fmt.Errorf("%w: %s is %s, reported %s", ErrRoleConflict, id, a.Role, role)
		}
		if a.Conn != conn {
			r.unindex(a)
			a.Conn = conn
			r.index(a)
		}
		a.Position = pos
		a.LastSeen = at
		return a, nil
	}

	a := &Actor{ID: id, Role: role, Position: pos, Conn: conn, LastSeen: at}
	r.actors[id] = a
	r.index(a)
	return a, nil
}

// Get returns the actor with the given id.
func (r *Registry) Get(id string) (*Actor, bool) {
	a, ok := r.actors[id]
	return a, ok
}

// Len returns the number of actors.
func (r *Registry) Len() int { return len(r.actors) }

// Remove deletes one actor by id.
func (r *Registry) Remove(id string) (*Actor, bool) {
	a, ok := r.actors[id]
	if !ok {
		return nil, false
	}
	delete(r.actors, id)
	r.unindex(a)
	return a, true
}

// RemoveByConn deletes every actor bound to conn and returns them.
func (r *Registry) RemoveByConn(conn model.Conn) []*Actor {
	ids := r.byConn[conn]
	if len(ids) == 0 {
		return nil
	}
	removed := make([]*Actor, 0, len(ids))
	for _, id := range slices.Sorted(maps.Keys(ids)) {
		removed = append(removed, r.actors[id])
		delete(r.actors, id)
	}
	delete(r.byConn, conn)
	return removed
}

// AllExcept yields every actor other than id. The sequence is lazy and can
// be ranged over more than once; order is unspecified.
func (r *Registry) AllExcept(id string) iter.Seq[*Actor] {
	return func(yield func(*Actor) bool) {
		for k, a := range r.actors {
			if k == id {
				continue
			}
			if !yield(a) {
				return
			}
		}
	}
}

// Snapshot returns a copy of every actor sorted by id.
func (r *Registry) Snapshot() []model.ActorView {
	out := make([]model.ActorView, 0, len(r.actors))
	for _, a := range r.actors {
		out = append(out, a.View())
	}
	slices.SortFunc(out, func(a, b model.ActorView) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Stale returns the ids of actors last seen before cutoff, sorted.
func (r *Registry) Stale(cutoff time.Time) []string {
	var ids []string
	for id, a := range r.actors {
		if a.LastSeen.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (r *Registry) index(a *Actor) {
	set, ok := r.byConn[a.Conn]
	if !ok {
		set = make(map[string]struct{})
		r.byConn[a.Conn] = set
	}
	set[a.ID] = struct{}{}
}

func (r *Registry) unindex(a *Actor) {
	set := r.byConn[a.Conn]
	delete(set, a.ID)
	if len(set) == 0 {
		delete(r.byConn, a.Conn)
	}
}
