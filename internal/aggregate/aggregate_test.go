package aggregate

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horviskoadrianko/aggr-server/internal/trade"
)

func newTestAggregator() *Aggregator {
	return New(zerolog.Nop())
}

func TestIngestMergesSameTimestampAndSide(t *testing.T) {
	a := newTestAggregator()

	_, ok := a.Ingest(trade.Trade{Exchange: "bitfinex", Pair: "BTC/USD", Timestamp: 100, Side: trade.Buy, Price: 10, Size: 1}, 100)
	assert.False(t, ok)

	_, ok = a.Ingest(trade.Trade{Exchange: "bitfinex", Pair: "BTC/USD", Timestamp: 100, Side: trade.Buy, Price: 20, Size: 1}, 100)
	assert.False(t, ok)
	assert.Equal(t, 1, a.Len())
}

func TestIngestSealsOnDisplacement(t *testing.T) {
	a := newTestAggregator()

	a.Ingest(trade.Trade{Exchange: "bitfinex", Pair: "BTC/USD", Timestamp: 100, Side: trade.Buy, Price: 10, Size: 1}, 100)
	a.Ingest(trade.Trade{Exchange: "bitfinex", Pair: "BTC/USD", Timestamp: 100, Side: trade.Buy, Price: 20, Size: 1}, 100)

	sealed, ok := a.Ingest(trade.Trade{Exchange: "bitfinex", Pair: "BTC/USD", Timestamp: 101, Side: trade.Buy, Price: 30, Size: 1}, 101)
	require.True(t, ok)
	assert.Equal(t, 15.0, sealed.Price) // volume-weighted average of 10 and 20
	assert.Equal(t, 2.0, sealed.Size)
	assert.Equal(t, 1, a.Len()) // the new trade is now open
}

func TestIngestSealsOnSideChange(t *testing.T) {
	a := newTestAggregator()

	a.Ingest(trade.Trade{Exchange: "bitfinex", Pair: "BTC/USD", Timestamp: 100, Side: trade.Buy, Price: 10, Size: 1}, 100)
	sealed, ok := a.Ingest(trade.Trade{Exchange: "bitfinex", Pair: "BTC/USD", Timestamp: 100, Side: trade.Sell, Price: 10, Size: 1}, 100)

	require.True(t, ok)
	assert.Equal(t, 10.0, sealed.Price)
	assert.Equal(t, trade.Buy, sealed.Side)
}

func TestSweepSealsExpiredComposites(t *testing.T) {
	a := newTestAggregator()
	a.Ingest(trade.Trade{Exchange: "bitfinex", Pair: "BTC/USD", Timestamp: 100, Side: trade.Buy, Price: 10, Size: 2}, 100)

	assert.Empty(t, a.Sweep(100+SealTimeout-1))
	assert.Equal(t, 1, a.Len())

	sealed := a.Sweep(100 + SealTimeout + 1)
	require.Len(t, sealed, 1)
	assert.Equal(t, 10.0, sealed[0].Price)
	assert.Equal(t, 0, a.Len())
}

func TestSweepDrainsQueuedDisplacementSeals(t *testing.T) {
	a := newTestAggregator()
	a.QueueSealed(trade.Trade{Exchange: "bitfinex", Pair: "BTC/USD", Timestamp: 50, Side: trade.Buy, Price: 15})

	sealed := a.Sweep(60)
	require.Len(t, sealed, 1)
	assert.Equal(t, int64(50), sealed[0].Timestamp)

	assert.Empty(t, a.Sweep(61))
}

func TestSealDivideByZeroSizeGuard(t *testing.T) {
	c := &composite{Trade: trade.Trade{Price: 0, Size: 0}}
	got := c.seal()
	assert.Equal(t, 0.0, got.Price)
}
