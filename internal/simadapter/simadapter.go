// Package simadapter is a reference exchange adapter: a synthetic trade
// generator implementing adapter.Controller and driving an adapter.Sink,
// used for local runs, demos, and tests in place of a real venue
// connection. It adapts the teacher's engine.MarketEngine/engine.RNG GBM
// price simulation, trimmed of the ITCH wire-format and order-book depth
// machinery that a trade-event-only producer has no use for.
package simadapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/horviskoadrianko/aggr-server/internal/adapter"
	"github.com/horviskoadrianko/aggr-server/internal/trade"
)

// defaultInstruments is a small fixed pair table; tickSize/volatility (and
// the starting prices in basePrices) mirror the spread the teacher used
// across symbol sectors, collapsed onto a handful of crypto-style pairs.
var defaultInstruments = []instrument{
	{pair: "BTC/USD", tickSize: 0.5, volatility: 1.4},
	{pair: "ETH/USD", tickSize: 0.05, volatility: 1.6},
	{pair: "SOL/USD", tickSize: 0.01, volatility: 1.9},
}

var basePrices = map[string]float64{
	"BTC/USD": 62000,
	"ETH/USD": 3400,
	"SOL/USD": 145,
}

// Adapter is a reference implementation of adapter.Controller: it
// generates a synthetic trade every tick for each linked pair and
// publishes it to the sink it was constructed with.
type Adapter struct {
	exchange string
	apiID    string
	sink     adapter.Sink
	interval time.Duration
	log      zerolog.Logger

	rng    *rng
	market *market

	mu     sync.Mutex
	linked map[string]instrument
	all    map[string]instrument

	cancel context.CancelFunc
}

// New creates a reference adapter for the named exchange, publishing to
// sink every interval.
func New(exchange string, sink adapter.Sink, interval time.Duration, seed int64, log zerolog.Logger) *Adapter {
	all := make(map[string]instrument, len(defaultInstruments))
	for _, in := range defaultInstruments {
		all[in.pair] = in
	}
	r := newRNG(seed)
	m := newMarket(r, defaultInstruments)
	for pair, price := range basePrices {
		m.seed(pair, price)
	}
	return &Adapter{
		exchange: exchange,
		apiID:    exchange + "-sim-1",
		sink:     sink,
		interval: interval,
		log:      log.With().Str("component", "simadapter").Str("exchange", exchange).Logger(),
		rng:      r,
		market:   m,
		linked:   make(map[string]instrument),
		all:      all,
	}
}

// ID implements adapter.Controller.
func (a *Adapter) ID() string { return a.exchange }

// APIs implements adapter.Controller: the reference adapter models a
// single upstream connection carrying every linked pair.
func (a *Adapter) APIs() []adapter.API { return []adapter.API{{ID: a.apiID}} }

// GetProductsAndConnect implements adapter.Controller: links every
// requested pair and starts the tick loop.
func (a *Adapter) GetProductsAndConnect(pairs []string) error {
	for _, p := range pairs {
		if err := a.Link(p); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.sink.OnOpen(a.exchange)
	go a.run(ctx)
	return nil
}

// Link implements adapter.Controller.
func (a *Adapter) Link(pair string) error {
	in, ok := a.all[pair]
	if !ok {
		return fmt.Errorf("simadapter: unknown pair %q", pair)
	}
	a.mu.Lock()
	a.linked[pair] = in
	a.mu.Unlock()
	a.sink.OnConnected(a.exchange, pair, a.apiID)
	return nil
}

// Unlink implements adapter.Controller.
func (a *Adapter) Unlink(pair string) error {
	a.mu.Lock()
	delete(a.linked, pair)
	a.mu.Unlock()
	a.sink.OnDisconnected(a.exchange, pair)
	return nil
}

// Reconnect implements adapter.Controller: tears down and relinks every
// currently-linked pair, rippling Disconnected then Connected events the
// way a real venue reconnect would.
func (a *Adapter) Reconnect(apiID string) error {
	if apiID != a.apiID {
		return fmt.Errorf("simadapter: unknown api id %q", apiID)
	}
	a.mu.Lock()
	pairs := make([]string, 0, len(a.linked))
	for p := range a.linked {
		pairs = append(pairs, p)
	}
	a.mu.Unlock()

	for _, p := range pairs {
		a.sink.OnDisconnected(a.exchange, p)
	}
	a.log.Info().Str("api_id", apiID).Msg("reconnecting")
	for _, p := range pairs {
		a.sink.OnConnected(a.exchange, p, a.apiID)
	}
	return nil
}

// Stop halts the tick loop.
func (a *Adapter) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.sink.OnClose(a.exchange)
}

func (a *Adapter) run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.emit()
		}
	}
}

// emit generates one synthetic trade per linked pair and delivers the
// batch as a single OnTrades call, the way a real adapter batches a
// feed tick.
func (a *Adapter) emit() {
	a.mu.Lock()
	linked := make([]instrument, 0, len(a.linked))
	for _, in := range a.linked {
		linked = append(linked, in)
	}
	a.mu.Unlock()

	if len(linked) == 0 {
		return
	}

	now := time.Now().UnixMilli()
	batch := make([]trade.Trade, 0, len(linked))
	for _, in := range linked {
		price := a.market.tick(in)
		side := trade.Buy
		if a.rng.float64() < 0.5 {
			side = trade.Sell
		}
		size := 0.01 + a.rng.float64()*2
		batch = append(batch, trade.Trade{
			Exchange:  a.exchange,
			Pair:      in.pair,
			Timestamp: now,
			Side:      side,
			Price:     price,
			Size:      size,
		})
	}
	a.sink.OnTrades(a.exchange, batch)
}
