// Package aggregate implements the volume-weighted trade aggregator (C3):
// it collapses micro-bursts where an exchange emits multiple fills on the
// same wall-clock millisecond and side into one composite trade.
package aggregate

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/horviskoadrianko/aggr-server/internal/trade"
)

// SealTimeout is the deadline after which an open composite is sealed even
// without a displacing trade.
const SealTimeout = 50 // ms

// composite is the intermediate representation: Price temporarily holds
// Σ(price·size), Size holds Σ size, until Seal() is called exactly once.
type composite struct {
	trade.Trade
	timeout int64
}

func (c *composite) seal() trade.Trade {
	t := c.Trade
	if t.Size != 0 {
		t.Price /= t.Size
	}
	return t
}

// Aggregator owns the aggregation map. Only this component mutates it; the
// broadcast tick reads and deletes expired entries by calling Sweep, which
// runs within the same logical step as ingestion.
type Aggregator struct {
	mu      sync.Mutex
	open    map[string]*composite
	pending []trade.Trade
	log     zerolog.Logger
}

// New creates an empty Aggregator.
func New(log zerolog.Logger) *Aggregator {
	return &Aggregator{
		open: make(map[string]*composite),
		log:  log.With().Str("component", "aggregate").Logger(),
	}
}

// Ingest feeds a single trade into the aggregator's merge/seal algorithm.
// Returns a sealed composite if the incoming trade displaced an open one
// with a different (timestamp, side); returns false otherwise.
func (a *Aggregator) Ingest(t trade.Trade, now int64) (sealed trade.Trade, ok bool) {
	key := t.Key()

	a.mu.Lock()
	defer a.mu.Unlock()

	open, exists := a.open[key]
	if exists && open.Timestamp == t.Timestamp && open.Side == t.Side {
		open.Size += t.Size
		open.Price += t.Price * t.Size
		return trade.Trade{}, false
	}

	if exists {
		sealed = open.seal()
		ok = true
	}

	a.open[key] = &composite{
		Trade: trade.Trade{
			Exchange:    t.Exchange,
			Pair:        t.Pair,
			Timestamp:   t.Timestamp,
			Side:        t.Side,
			Price:       t.Price * t.Size,
			Size:        t.Size,
			Liquidation: t.Liquidation,
		},
		timeout: now + SealTimeout,
	}
	return sealed, ok
}

// QueueSealed appends a composite already sealed by Ingest's displacement
// path so it leaves the aggregator on the next Sweep tick instead of being
// broadcast immediately from inside the ingestion hot path: all aggregated
// output travels through the same 50ms cadence.
func (a *Aggregator) QueueSealed(t trade.Trade) {
	a.mu.Lock()
	a.pending = append(a.pending, t)
	a.mu.Unlock()
}

// Sweep seals and removes every open composite whose timeout has elapsed,
// and drains anything queued via QueueSealed since the last call. Invoked
// every 50ms by the broadcast tick in aggregated mode.
func (a *Aggregator) Sweep(now int64) []trade.Trade {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := a.pending
	a.pending = nil
	for key, open := range a.open {
		if open.timeout < now {
			out = append(out, open.seal())
			delete(a.open, key)
		}
	}
	return out
}

// Len returns the number of currently open composites, for diagnostics.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.open)
}
