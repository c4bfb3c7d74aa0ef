package simadapter

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horviskoadrianko/aggr-server/internal/trade"
)

// fakeSink records adapter.Sink calls for assertions.
type fakeSink struct {
	mu           sync.Mutex
	trades       [][]trade.Trade
	connected    []string
	disconnected []string
}

func (f *fakeSink) OnTrades(exchange string, batch []trade.Trade) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades = append(f.trades, batch)
}
func (f *fakeSink) OnIndex(products []trade.IndexedProduct) {}
func (f *fakeSink) OnOpen(exchange string)                  {}
func (f *fakeSink) OnError(exchange string, err error)      {}
func (f *fakeSink) OnClose(exchange string)                 {}
func (f *fakeSink) OnConnected(exchange, pair, apiID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = append(f.connected, pair)
}
func (f *fakeSink) OnDisconnected(exchange, pair string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, pair)
}

func (f *fakeSink) tradeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.trades)
}

func TestLinkUnknownPairErrors(t *testing.T) {
	sink := &fakeSink{}
	a := New("sim", sink, time.Hour, 1, zerolog.Nop())
	err := a.Link("XRP/USD")
	assert.Error(t, err)
}

func TestLinkKnownPairNotifiesSink(t *testing.T) {
	sink := &fakeSink{}
	a := New("sim", sink, time.Hour, 1, zerolog.Nop())
	require.NoError(t, a.Link("BTC/USD"))
	assert.Equal(t, []string{"BTC/USD"}, sink.connected)
}

func TestGetProductsAndConnectStartsTickLoop(t *testing.T) {
	sink := &fakeSink{}
	a := New("sim", sink, 5*time.Millisecond, 1, zerolog.Nop())
	defer a.Stop()

	require.NoError(t, a.GetProductsAndConnect([]string{"BTC/USD", "ETH/USD"}))

	require.Eventually(t, func() bool {
		return sink.tradeCount() > 0
	}, time.Second, 5*time.Millisecond)
}

func TestReconnectRipplesDisconnectThenConnect(t *testing.T) {
	sink := &fakeSink{}
	a := New("sim", sink, time.Hour, 1, zerolog.Nop())
	require.NoError(t, a.Link("BTC/USD"))
	sink.connected = nil // reset from the initial Link above

	require.NoError(t, a.Reconnect(a.apiID))
	assert.Equal(t, []string{"BTC/USD"}, sink.disconnected)
	assert.Equal(t, []string{"BTC/USD"}, sink.connected)
}

func TestReconnectUnknownAPIErrors(t *testing.T) {
	sink := &fakeSink{}
	a := New("sim", sink, time.Hour, 1, zerolog.Nop())
	assert.Error(t, a.Reconnect("not-a-real-api"))
}
