package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateNoFeedsUsesFloorThreshold(t *testing.T) {
	stalled, minPing, threshold := Evaluate(nil, nil, nil, 1000, 60_000)
	assert.False(t, stalled)
	assert.Equal(t, int64(0), minPing)
	assert.Equal(t, int64(MinThreshold), threshold)
}

func TestEvaluateActiveFeedNotStalled(t *testing.T) {
	// one feed started 10s ago with 100 hits: rate = (60000/10000)*100 = 600.
	// threshold = 60000 / (0.5 + 600/1/100) = 60000/6.5 ≈ 9230ms, clamped
	// up to the 10_000ms floor.
	hits := []uint64{100}
	timestamps := []int64{9_900} // last trade 100ms ago
	starts := []int64{0}
	now := int64(10_000)

	stalled, minPing, threshold := Evaluate(hits, timestamps, starts, now, 60_000)
	assert.False(t, stalled)
	assert.Equal(t, int64(100), minPing)
	assert.Less(t, threshold, int64(60_000))
}

func TestEvaluateIdleFeedStalls(t *testing.T) {
	// one feed with zero hits: rate contribution is zero, so threshold
	// falls back to reconnectionThreshold / 0.5.
	hits := []uint64{0}
	timestamps := []int64{0}
	starts := []int64{0}
	now := int64(200_000) // 200s since last trade, well past any threshold

	stalled, minPing, threshold := Evaluate(hits, timestamps, starts, now, 60_000)
	assert.True(t, stalled)
	assert.Equal(t, int64(200_000), minPing)
	assert.Equal(t, int64(120_000), threshold) // 60000 / 0.5
}

func TestEvaluateThresholdNeverBelowFloor(t *testing.T) {
	// an extremely high rate should drive threshold below MinThreshold,
	// which must clamp it back up.
	hits := []uint64{1_000_000}
	timestamps := []int64{10_000}
	starts := []int64{0}
	now := int64(10_000)

	_, _, threshold := Evaluate(hits, timestamps, starts, now, 60_000)
	assert.Equal(t, int64(MinThreshold), threshold)
}
