// Package registry tracks per-(exchange, pair) feed liveness reported by
// adapter lifecycle events, and groups feeds by their underlying API
// connection for the Activity Monitor. It is the only component that
// mutates this state; everything else reads snapshots.
package registry

import (
	"sync"

	"github.com/rs/zerolog"
)

// Entry is a single live (exchange, pair) feed.
type Entry struct {
	APIID     string
	Exchange  string
	Pair      string
	Hit       uint64
	Start     int64 // monotonic ms at registration
	Timestamp int64 // monotonic ms of last trade
}

// APISnapshot is the per-apiId view the Activity Monitor consumes.
type APISnapshot struct {
	APIID      string
	Pairs      []string
	Hits       []uint64
	Timestamps []int64
	StartTimes []int64
}

// Registry is a single-owner, mutex-guarded map of live feeds keyed by
// "{exchange}:{pair}". Grounded on the teacher's session.Manager locking
// shape (internal/session/manager.go), generalized from client-keyed to
// pair-keyed state.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
	log     zerolog.Logger
}

// New creates an empty Registry.
func New(log zerolog.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		log:     log.With().Str("component", "registry").Logger(),
	}
}

// Register records a new live feed on adapter `connected`. Fails silently
// (logged) if the key already exists: this is treated as a bug
// in the adapter, not a condition the registry recovers from by overwriting.
func (r *Registry) Register(exchange, pair, apiID string, now int64) {
	key := exchange + ":" + pair
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[key]; exists {
		r.log.Warn().Str("pair", key).Msg("register called for already-registered feed")
		return
	}
	r.entries[key] = &Entry{
		APIID:     apiID,
		Exchange:  exchange,
		Pair:      pair,
		Start:     now,
		Timestamp: now,
	}
}

// Deregister removes a live feed on adapter `disconnected`. Fails silently
// (logged) if the entry is absent.
func (r *Registry) Deregister(exchange, pair string) {
	key := exchange + ":" + pair
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[key]; !exists {
		r.log.Warn().Str("pair", key).Msg("deregister called for unknown feed")
		return
	}
	delete(r.entries, key)
}

// Exists reports whether a live entry exists for the given pair key,
// without mutating any counters. Used by the Ingestion Router to implement
// check-then-touch ordering (the aggregation path must
// check liveness before mutating any buffer).
func (r *Registry) Exists(exchange, pair string) bool {
	key := exchange + ":" + pair
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}

// Touch increments the hit counter and updates the last-seen timestamp for
// a live feed. If no entry exists the trade is dropped (under-subscribed
// feed) — touch never creates a phantom registration. Returns false when
// the trade was dropped.
func (r *Registry) Touch(exchange, pair string, now int64) bool {
	key := exchange + ":" + pair
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return false
	}
	e.Hit++
	e.Timestamp = now
	return true
}

// SnapshotByAPI groups live entries by apiId for the Activity Monitor.
func (r *Registry) SnapshotByAPI() map[string]*APISnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]*APISnapshot)
	for _, e := range r.entries {
		snap, ok := out[e.APIID]
		if !ok {
			snap = &APISnapshot{APIID: e.APIID}
			out[e.APIID] = snap
		}
		snap.Pairs = append(snap.Pairs, e.Exchange+":"+e.Pair)
		snap.Hits = append(snap.Hits, e.Hit)
		snap.Timestamps = append(snap.Timestamps, e.Timestamp)
		snap.StartTimes = append(snap.StartTimes, e.Start)
	}
	return out
}

// Len returns the number of live feeds, used by diagnostics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Snapshot returns a shallow copy of all live entries, for the connection
// table diagnostic print.
func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	return out
}
