package broadcast

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horviskoadrianko/aggr-server/internal/trade"
)

func newTestManager(bufferSize int) *Manager {
	return New(bufferSize, zerolog.Nop(), nil)
}

func TestClientCountTracksClientMap(t *testing.T) {
	m := newTestManager(8)
	c := NewClient(nil, 8, []string{"coinbase:BTC/USD"})
	m.mu.Lock()
	m.clients[c.ID] = c
	m.mu.Unlock()

	assert.Equal(t, 1, m.ClientCount())

	m.mu.Lock()
	delete(m.clients, c.ID)
	m.mu.Unlock()
	assert.Equal(t, 0, m.ClientCount())
}

func TestBroadcastTradesSendsOnlySubscribedPairs(t *testing.T) {
	m := newTestManager(8)
	c := NewClient(nil, 8, []string{"coinbase:BTC/USD"})
	m.mu.Lock()
	m.clients[c.ID] = c
	m.mu.Unlock()

	m.BroadcastTrades([]trade.Trade{
		{Exchange: "coinbase", Pair: "BTC/USD", Timestamp: 1},
		{Exchange: "coinbase", Pair: "ETH/USD", Timestamp: 2},
	})

	select {
	case data := <-c.SendCh():
		var frame Frame
		require.NoError(t, json.Unmarshal(data, &frame))
		assert.Equal(t, "coinbase:BTC/USD", frame[0])
	default:
		t.Fatal("expected a frame to be queued")
	}

	select {
	case <-c.SendCh():
		t.Fatal("should not have received a second frame for an unsubscribed pair")
	default:
	}
}

func TestBroadcastTradesDoesNotAliasCallerSlice(t *testing.T) {
	m := newTestManager(8)
	c := NewClient(nil, 8, []string{"coinbase:BTC/USD"})
	m.mu.Lock()
	m.clients[c.ID] = c
	m.mu.Unlock()

	batch := []trade.Trade{{Exchange: "coinbase", Pair: "BTC/USD", Timestamp: 1, Price: 100}}
	m.BroadcastTrades(batch)
	batch[0].Price = 999 // mutate after the call

	data := <-c.SendCh()
	var frame Frame
	require.NoError(t, json.Unmarshal(data, &frame))
	trades := frame[1].([]any)
	require.Len(t, trades, 1)
	tr := trades[0].(map[string]any)
	assert.Equal(t, 100.0, tr["Price"])
}

func TestClientDropsWhenBufferFull(t *testing.T) {
	m := newTestManager(1)
	c := NewClient(nil, 1, []string{"coinbase:BTC/USD"})
	m.mu.Lock()
	m.clients[c.ID] = c
	m.mu.Unlock()

	for i := 0; i < 3; i++ {
		m.BroadcastTrades([]trade.Trade{{Exchange: "coinbase", Pair: "BTC/USD", Timestamp: int64(i)}})
	}

	assert.Greater(t, c.Dropped, uint64(0))
}

func TestEnqueueAndDrainDebounced(t *testing.T) {
	m := newTestManager(8)
	c := NewClient(nil, 8, []string{"coinbase:BTC/USD"})
	m.mu.Lock()
	m.clients[c.ID] = c
	m.mu.Unlock()

	m.Enqueue([]trade.Trade{{Exchange: "coinbase", Pair: "BTC/USD", Timestamp: 1}})
	m.Enqueue([]trade.Trade{{Exchange: "coinbase", Pair: "BTC/USD", Timestamp: 2}})
	m.DrainDebounced()

	data := <-c.SendCh()
	var frame Frame
	require.NoError(t, json.Unmarshal(data, &frame))
	trades := frame[1].([]any)
	assert.Len(t, trades, 2)
}
