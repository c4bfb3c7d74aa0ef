// Package ingest implements the Ingestion Router (C2): it consumes
// normalized trade batches from adapters, updates the Connection Registry,
// and forks each trade into persistence, aggregation, and broadcast paths.
//
// Grounded directly on the teacher's cmd/feedsim/main.go symbolRunner,
// which already performs this exact fork for every generated trade batch:
// enqueueTrades(tradeCh, ...) for persistence and mgr.Broadcast(...) for
// fan-out. This rewrite replaces the teacher's own trade generation with
// consumption of the adapter.Sink contract and adds the Aggregator fork.
package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/horviskoadrianko/aggr-server/internal/aggregate"
	"github.com/horviskoadrianko/aggr-server/internal/persistence"
	"github.com/horviskoadrianko/aggr-server/internal/registry"
	"github.com/horviskoadrianko/aggr-server/internal/trade"
)

// BroadcastMode selects how the router forwards trades to the broadcast
// path. Aggregation and debounce are mutually exclusive modes.
type BroadcastMode int

const (
	BroadcastDisabled BroadcastMode = iota
	BroadcastImmediate
	BroadcastDebounced
	BroadcastAggregated
)

// Dispatcher is the subset of the broadcast package the router depends on,
// kept as an interface so ingest has no import-time dependency on
// websocket transport.
type Dispatcher interface {
	BroadcastTrades(batch []trade.Trade)
	Enqueue(batch []trade.Trade) // debounced mode: append to delayedForBroadcast
}

// Router is the Ingestion Router.
type Router struct {
	reg        *registry.Registry
	chunk      *persistence.Chunk // nil if storage is not configured
	aggregator *aggregate.Aggregator
	dispatch   Dispatcher
	mode       BroadcastMode
	log        zerolog.Logger

	dropped  prometheus.Counter
	ingested prometheus.Counter
}

// NewRouter wires the Ingestion Router. chunk may be nil when no storage is
// configured; aggregator may be nil unless mode is BroadcastAggregated.
func NewRouter(reg *registry.Registry, chunk *persistence.Chunk, aggregator *aggregate.Aggregator, dispatch Dispatcher, mode BroadcastMode, log zerolog.Logger, reg2 prometheus.Registerer) *Router {
	r := &Router{
		reg:        reg,
		chunk:      chunk,
		aggregator: aggregator,
		dispatch:   dispatch,
		mode:       mode,
		log:        log.With().Str("component", "ingest").Logger(),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggr_ingest_dropped_total",
			Help: "Trades dropped because their pair key had no registry entry.",
		}),
		ingested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggr_ingest_total",
			Help: "Trades accepted by the ingestion router.",
		}),
	}
	if reg2 != nil {
		reg2.MustRegister(r.dropped, r.ingested)
	}
	return r
}

// OnTrades implements the adapter.Sink event for both `trades` and
// `liquidations` channels: the router treats them identically.
func (r *Router) OnTrades(exchange string, batch []trade.Trade, now int64) {
	if len(batch) == 0 {
		return
	}

	accepted := make([]trade.Trade, 0, len(batch))
	for _, t := range batch {
		// check-then-touch: registry lookup happens before any buffer
		// mutation.
		if !r.reg.Exists(t.Exchange, t.Pair) {
			r.dropped.Inc()
			continue
		}
		r.reg.Touch(t.Exchange, t.Pair, now)
		r.ingested.Inc()
		accepted = append(accepted, t)

		if r.chunk != nil {
			r.chunk.Append(t)
		}
	}

	if len(accepted) == 0 || r.dispatch == nil {
		return
	}

	switch r.mode {
	case BroadcastAggregated:
		for _, t := range accepted {
			if sealed, ok := r.aggregator.Ingest(t, now); ok {
				// Queued rather than broadcast here: aggregated output
				// only leaves on the 50ms Sweep tick, same as a
				// timeout-expired composite.
				r.aggregator.QueueSealed(sealed)
			}
		}
	case BroadcastImmediate:
		r.dispatch.BroadcastTrades(accepted)
	case BroadcastDebounced:
		r.dispatch.Enqueue(accepted)
	case BroadcastDisabled:
	}
}
