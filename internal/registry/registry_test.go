package registry

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return New(zerolog.Nop())
}

func TestRegisterAndTouch(t *testing.T) {
	r := newTestRegistry()
	r.Register("coinbase", "BTC/USD", "cb-1", 1000)

	assert.True(t, r.Exists("coinbase", "BTC/USD"))
	assert.True(t, r.Touch("coinbase", "BTC/USD", 1500))

	snaps := r.SnapshotByAPI()
	require.Contains(t, snaps, "cb-1")
	assert.Equal(t, []uint64{1}, snaps["cb-1"].Hits)
	assert.Equal(t, []int64{1500}, snaps["cb-1"].Timestamps)
	assert.Equal(t, []int64{1000}, snaps["cb-1"].StartTimes)
}

func TestRegisterTwiceNoOps(t *testing.T) {
	r := newTestRegistry()
	r.Register("coinbase", "BTC/USD", "cb-1", 1000)
	r.Touch("coinbase", "BTC/USD", 2000)
	r.Register("coinbase", "BTC/USD", "cb-2", 5000)

	snaps := r.SnapshotByAPI()
	require.Contains(t, snaps, "cb-1")
	assert.NotContains(t, snaps, "cb-2")
	assert.Equal(t, []uint64{1}, snaps["cb-1"].Hits)
}

func TestTouchUnknownFeedDrops(t *testing.T) {
	r := newTestRegistry()
	assert.False(t, r.Touch("coinbase", "BTC/USD", 1000))
	assert.Equal(t, 0, r.Len())
}

func TestDeregisterUnknownFeedNoOps(t *testing.T) {
	r := newTestRegistry()
	r.Deregister("coinbase", "BTC/USD") // must not panic
	assert.Equal(t, 0, r.Len())
}

func TestDeregisterRemovesEntry(t *testing.T) {
	r := newTestRegistry()
	r.Register("coinbase", "BTC/USD", "cb-1", 1000)
	r.Deregister("coinbase", "BTC/USD")

	assert.False(t, r.Exists("coinbase", "BTC/USD"))
	assert.Equal(t, 0, r.Len())
}
