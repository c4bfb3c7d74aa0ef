package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAlignedDelayAddsIntervalWhenTooClose(t *testing.T) {
	interval := 10 * time.Second
	// 9_990ms into the boundary: 10_000 - 9_990 - 20 = -10ms, under the
	// 1000ms floor, so a full interval is added.
	now := int64(9_990)
	got := AlignedDelay(now, interval)
	assert.Equal(t, 10*time.Second-10*time.Millisecond, got)
}

func TestAlignedDelayKeepsShortGapWhenFarFromBoundary(t *testing.T) {
	interval := 10 * time.Second
	now := int64(1_000)
	got := AlignedDelay(now, interval)
	// boundary at 10_000, delay = 10_000 - 1_000 - 20 = 8980ms, above floor.
	assert.Equal(t, 8980*time.Millisecond, got)
}

func TestAlignedDelayZeroInterval(t *testing.T) {
	assert.Equal(t, time.Duration(0), AlignedDelay(1000, 0))
}
