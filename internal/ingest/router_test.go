package ingest

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horviskoadrianko/aggr-server/internal/aggregate"
	"github.com/horviskoadrianko/aggr-server/internal/persistence"
	"github.com/horviskoadrianko/aggr-server/internal/registry"
	"github.com/horviskoadrianko/aggr-server/internal/trade"
)

type fakeDispatcher struct {
	broadcast [][]trade.Trade
	enqueued  [][]trade.Trade
}

func (f *fakeDispatcher) BroadcastTrades(batch []trade.Trade) {
	f.broadcast = append(f.broadcast, batch)
}

func (f *fakeDispatcher) Enqueue(batch []trade.Trade) {
	f.enqueued = append(f.enqueued, batch)
}

func newTestRouter(mode BroadcastMode, agg *aggregate.Aggregator, dispatch Dispatcher) (*Router, *registry.Registry) {
	reg := registry.New(zerolog.Nop())
	r := NewRouter(reg, persistence.NewChunk(), agg, dispatch, mode, zerolog.Nop(), nil)
	return r, reg
}

func TestOnTradesDropsUnregisteredPair(t *testing.T) {
	dispatch := &fakeDispatcher{}
	r, _ := newTestRouter(BroadcastImmediate, nil, dispatch)

	r.OnTrades("bitfinex", []trade.Trade{{Exchange: "bitfinex", Pair: "BTC/USD", Timestamp: 1}}, 1)

	assert.Empty(t, dispatch.broadcast)
}

func TestOnTradesImmediateBroadcastsAccepted(t *testing.T) {
	dispatch := &fakeDispatcher{}
	r, reg := newTestRouter(BroadcastImmediate, nil, dispatch)
	reg.Register("bitfinex", "BTC/USD", "api1", 0)

	r.OnTrades("bitfinex", []trade.Trade{{Exchange: "bitfinex", Pair: "BTC/USD", Timestamp: 1}}, 1)

	require.Len(t, dispatch.broadcast, 1)
	assert.Len(t, dispatch.broadcast[0], 1)
}

func TestOnTradesDebouncedEnqueuesInsteadOfBroadcasting(t *testing.T) {
	dispatch := &fakeDispatcher{}
	r, reg := newTestRouter(BroadcastDebounced, nil, dispatch)
	reg.Register("bitfinex", "BTC/USD", "api1", 0)

	r.OnTrades("bitfinex", []trade.Trade{{Exchange: "bitfinex", Pair: "BTC/USD", Timestamp: 1}}, 1)

	assert.Empty(t, dispatch.broadcast)
	require.Len(t, dispatch.enqueued, 1)
}

func TestOnTradesAggregatedQueuesDisplacementSealInsteadOfBroadcasting(t *testing.T) {
	dispatch := &fakeDispatcher{}
	agg := aggregate.New(zerolog.Nop())
	r, reg := newTestRouter(BroadcastAggregated, agg, dispatch)
	reg.Register("bitfinex", "BTC/USD", "api1", 0)

	r.OnTrades("bitfinex", []trade.Trade{{Exchange: "bitfinex", Pair: "BTC/USD", Timestamp: 100, Side: trade.Buy, Price: 10, Size: 1}}, 100)
	r.OnTrades("bitfinex", []trade.Trade{{Exchange: "bitfinex", Pair: "BTC/USD", Timestamp: 101, Side: trade.Buy, Price: 20, Size: 1}}, 101)

	// the router never broadcasts directly in aggregated mode: the
	// displacement seal from the second trade must only be reachable via
	// the aggregator's own drain (Sweep), not dispatch.BroadcastTrades.
	assert.Empty(t, dispatch.broadcast)

	sealed := agg.Sweep(1_000_000)
	require.Len(t, sealed, 2) // the first composite (displaced) plus the second (timed out)
}
