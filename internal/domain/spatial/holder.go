package spatial

import "sync/atomic"

// Holder publishes the current index. Readers never block; a rebuilt index
// replaces the old one in a single atomic store.
type Holder struct {
	p atomic.Pointer[Index]
}

// Load returns the current index, or nil when none has been built.
func (h *Holder) Load() *Index { return h.p.Load() }

// Store publishes idx.
func (h *Holder) Store(idx *Index) { h.p.Store(idx) }
