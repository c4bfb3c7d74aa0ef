package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horviskoadrianko/aggr-server/internal/persistence"
	"github.com/horviskoadrianko/aggr-server/internal/trade"
)

// fakeStorage is an in-memory persistence.Storage test double.
type fakeStorage struct {
	format persistence.Format
	trades []trade.Trade
	points []trade.PointRecord
}

func (f *fakeStorage) Name() string               { return "fake" }
func (f *fakeStorage) Format() persistence.Format { return f.format }
func (f *fakeStorage) Connect(ctx context.Context) error { return nil }
func (f *fakeStorage) Save(ctx context.Context, batch []trade.Trade, isExitFlush bool) error {
	return nil
}
func (f *fakeStorage) Fetch(ctx context.Context, q persistence.FetchQuery) (persistence.FetchResult, error) {
	if f.format == persistence.PointFormat {
		return persistence.FetchResult{Points: f.points}, nil
	}
	return persistence.FetchResult{Trades: f.trades}, nil
}

func TestHandleDisabledWithNoStorage(t *testing.T) {
	h := New(nil, persistence.NewChunk(), 1000)
	_, err := h.Handle(context.Background(), Request{From: 0, To: 100})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestHandleTradeFormatMergesChunkTail(t *testing.T) {
	store := &fakeStorage{
		format: persistence.TradeFormat,
		trades: []trade.Trade{{Exchange: "ex", Pair: "BTC/USD", Timestamp: 50}},
	}
	chunk := persistence.NewChunk()
	chunk.AppendBatch([]trade.Trade{
		{Exchange: "ex", Pair: "BTC/USD", Timestamp: 60},  // inside (0,100), kept
		{Exchange: "ex", Pair: "BTC/USD", Timestamp: 100}, // equals `to`, excluded
		{Exchange: "ex", Pair: "BTC/USD", Timestamp: 0},   // equals `from`, excluded
	})

	h := New(store, chunk, 1000)
	resp, err := h.Handle(context.Background(), Request{From: 0, To: 100})
	require.NoError(t, err)
	assert.Equal(t, persistence.TradeFormat, resp.Format)
	require.Len(t, resp.Trades, 2)
	assert.Equal(t, int64(50), resp.Trades[0].Timestamp)
	assert.Equal(t, int64(60), resp.Trades[1].Timestamp)
}

func TestHandleTradeFormatNotFound(t *testing.T) {
	store := &fakeStorage{format: persistence.TradeFormat}
	h := New(store, persistence.NewChunk(), 1000)
	_, err := h.Handle(context.Background(), Request{From: 0, To: 100})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHandlePointFormatTooManyBars(t *testing.T) {
	store := &fakeStorage{format: persistence.PointFormat}
	h := New(store, persistence.NewChunk(), 5)
	_, err := h.Handle(context.Background(), Request{From: 0, To: 1_000_000, Timeframe: 60_000})
	assert.ErrorIs(t, err, ErrTooManyBars)
}

func TestHandleSwapsInvertedRange(t *testing.T) {
	store := &fakeStorage{
		format: persistence.TradeFormat,
		trades: []trade.Trade{{Exchange: "ex", Pair: "BTC/USD", Timestamp: 50}},
	}
	h := New(store, persistence.NewChunk(), 1000)
	resp, err := h.Handle(context.Background(), Request{From: 100, To: 0})
	require.NoError(t, err)
	require.Len(t, resp.Trades, 1)
}
