package cooldown

import (
	"strconv"
	"time"
)

// Pair is the single cooldown record shared by two matched actors. Both
// actors point at the same Pair, so it is set and cleared for both at once.
type Pair struct {
	Key     string
	Members [2]string
	Started time.Time
	seq     uint64
}

// PairKey returns an order-independent key for two actor ids.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// TimerKey is the scheduler key used for the pair's release. It is unique
// per encounter, so a later encounter of the same two ids never replaces it.
func (p *Pair) TimerKey() string {
	return "cooldown/" + p.Key + "#" + strconv.FormatUint(p.seq, 10)
}

// Tracker holds the pairs currently in cooldown. Not goroutine-safe.
type Tracker struct {
	active map[*Pair]struct{}
	seq    uint64
}

func NewTracker() *Tracker {
	return &Tracker{active: make(map[*Pair]struct{})}
}

// Begin creates and tracks a new pair.
func (t *Tracker) Begin(a, b string, at time.Time) *Pair {
	t.seq++
	p := &Pair{Key: PairKey(a, b), Members: [2]string{a, b}, Started: at, seq: t.seq}
	t.active[p] = struct{}{}
	return p
}

// End stops tracking p. Ending an unknown pair is a no-op.
func (t *Tracker) End(p *Pair) {
	delete(t.active, p)
}

// Active returns the number of tracked pairs.
func (t *Tracker) Active() int { return len(t.active) }

// All returns the tracked pairs in no particular order.
func (t *Tracker) All() []*Pair {
	out := make([]*Pair, 0, len(t.active))
	for p := range t.active {
		out = append(out, p)
	}
	return out
}

// Clear drops every tracked pair.
func (t *Tracker) Clear() { clear(t.active) }
