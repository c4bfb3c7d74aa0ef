// Package core wires the per-resource single-owner components (registry,
// chunk, aggregator, broadcast manager) into the adapter.Sink and
// monitor.Reconnector contracts, and tracks which adapter.Controller owns
// a given apiID so the Activity Monitor's reconnect instructions reach the
// right adapter. No single global mutex is required — each shared
// resource is guarded by its own dedicated lock (registry, chunk,
// aggregator, and the controller registry below), satisfying the
// single-writer invariant per field.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/horviskoadrianko/aggr-server/internal/adapter"
	"github.com/horviskoadrianko/aggr-server/internal/broadcast"
	"github.com/horviskoadrianko/aggr-server/internal/ingest"
	"github.com/horviskoadrianko/aggr-server/internal/registry"
	"github.com/horviskoadrianko/aggr-server/internal/trade"
)

// Core is the process-local Sink implementation binding adapter lifecycle
// events to the Connection Registry and the Ingestion Router.
type Core struct {
	reg      *registry.Registry
	router   *ingest.Router
	bc       *broadcast.Manager
	log      zerolog.Logger

	mu          sync.Mutex
	controllers map[string]adapter.Controller // exchange -> controller
	apiOwner    map[string]string             // apiID -> exchange

	indexMu sync.Mutex
	index   map[string]*trade.IndexedProduct
}

// New creates a Core.
func New(reg *registry.Registry, router *ingest.Router, bc *broadcast.Manager, log zerolog.Logger) *Core {
	return &Core{
		reg:         reg,
		router:      router,
		bc:          bc,
		log:         log.With().Str("component", "core").Logger(),
		controllers: make(map[string]adapter.Controller),
		apiOwner:    make(map[string]string),
		index:       make(map[string]*trade.IndexedProduct),
	}
}

// RegisterController attaches an exchange adapter's Controller surface so
// the monitor's Reconnect calls and lifecycle wiring can reach it. This is
// an explicit registration-at-startup pattern, avoiding any
// object-graph cycle between core and adapter.
func (c *Core) RegisterController(ctrl adapter.Controller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controllers[ctrl.ID()] = ctrl
	for _, api := range ctrl.APIs() {
		c.apiOwner[api.ID] = ctrl.ID()
	}
}

// Reconnect implements monitor.Reconnector: looks up the owning adapter
// for a stalled apiID and instructs it to reconnect.
func (c *Core) Reconnect(ctx context.Context, apiID string) error {
	c.mu.Lock()
	exchange, ok := c.apiOwner[apiID]
	var ctrl adapter.Controller
	if ok {
		ctrl = c.controllers[exchange]
	}
	c.mu.Unlock()

	if ctrl == nil {
		return fmt.Errorf("no controller owns api %q", apiID)
	}
	return ctrl.Reconnect(apiID)
}

// OnTrades implements adapter.Sink.
func (c *Core) OnTrades(exchange string, batch []trade.Trade) {
	now := time.Now().UnixMilli()
	c.router.OnTrades(exchange, batch, now)
}

// OnIndex implements adapter.Sink: indexed products are append-only for
// process lifetime.
func (c *Core) OnIndex(products []trade.IndexedProduct) {
	c.indexMu.Lock()
	defer c.indexMu.Unlock()
	for _, p := range products {
		existing, ok := c.index[p.Value]
		if !ok {
			cp := p
			c.index[p.Value] = &cp
			continue
		}
		existing.Count = p.Count
		existing.Exchanges = p.Exchanges
	}
}

// OnOpen implements adapter.Sink.
func (c *Core) OnOpen(exchange string) {
	c.log.Info().Str("exchange", exchange).Msg("adapter opened")
}

// OnError implements adapter.Sink.
func (c *Core) OnError(exchange string, err error) {
	c.log.Error().Err(err).Str("exchange", exchange).Msg("adapter error")
	c.bc.BroadcastJSON(broadcast.Envelope{Type: broadcast.EventExchangeError, Data: map[string]string{"exchange": exchange, "message": err.Error()}})
}

// OnClose implements adapter.Sink.
func (c *Core) OnClose(exchange string) {
	c.log.Warn().Str("exchange", exchange).Msg("adapter closed")
}

// OnConnected implements adapter.Sink.
func (c *Core) OnConnected(exchange, pair, apiID string) {
	c.reg.Register(exchange, pair, apiID, time.Now().UnixMilli())

	c.mu.Lock()
	c.apiOwner[apiID] = exchange
	c.mu.Unlock()

	c.bc.BroadcastJSON(broadcast.Envelope{Type: broadcast.EventExchangeConnected, Data: map[string]string{"exchange": exchange, "pair": pair}})
}

// OnDisconnected implements adapter.Sink.
func (c *Core) OnDisconnected(exchange, pair string) {
	c.reg.Deregister(exchange, pair)
	c.bc.BroadcastJSON(broadcast.Envelope{Type: broadcast.EventExchangeDisconnected, Data: map[string]string{"exchange": exchange, "pair": pair}})
}

// IndexedProducts returns a snapshot of the accumulated index for the
// welcome envelope's supported-pairs listing.
func (c *Core) IndexedProducts() []trade.IndexedProduct {
	c.indexMu.Lock()
	defer c.indexMu.Unlock()
	out := make([]trade.IndexedProduct, 0, len(c.index))
	for _, p := range c.index {
		out = append(out, *p)
	}
	return out
}

// Exchanges returns the set of exchanges with a registered controller, for
// the welcome envelope's connections listing.
func (c *Core) Exchanges() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.controllers))
	for ex := range c.controllers {
		out = append(out, ex)
	}
	return out
}
