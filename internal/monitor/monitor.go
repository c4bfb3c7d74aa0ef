// Package monitor implements the Activity Monitor (C6): it periodically
// inspects per-API staleness and triggers reconnection of stale APIs.
//
// New relative to the teacher (which has no stall-detection concept); its
// shape (ticker-driven periodic task, one bounded pass per tick, errors
// logged not fatal) is grounded on persist/retention.go and
// internal/archive/archiver.go, and the per-connection liveness tracking
// idea is grounded on the pack's kalshi/internal/connection manager
// (ConnStats-style per-connection snapshots).
package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/horviskoadrianko/aggr-server/internal/diag"
	"github.com/horviskoadrianko/aggr-server/internal/registry"
)

// MinThreshold is the floor below which the adaptive stall threshold never
// drops, preventing pathological early reconnects for near-idle feeds.
const MinThreshold = 10_000 // ms

// diagnosticEvery is the number of monitor ticks between connection-table
// diagnostic prints (N = monitorInterval*60/monitorInterval = 60).
const diagnosticEvery = 60

// Reconnector is the subset of the adapter contract the monitor needs: it
// instructs the owning exchange adapter to reconnect a stalled API.
type Reconnector interface {
	Reconnect(ctx context.Context, apiID string) error
}

// Monitor is the Activity Monitor.
type Monitor struct {
	reg                    *registry.Registry
	reconnector            Reconnector
	interval               time.Duration
	reconnectionThreshold  int64
	log                    zerolog.Logger
	nowFunc                func() int64
	diag                   *diag.Sampler
	ticks                  int
}

// New creates an Activity Monitor.
func New(reg *registry.Registry, reconnector Reconnector, interval time.Duration, reconnectionThreshold int64, log zerolog.Logger, nowFunc func() int64, diagSampler *diag.Sampler) *Monitor {
	if nowFunc == nil {
		nowFunc = func() int64 { return time.Now().UnixMilli() }
	}
	return &Monitor{
		reg:                   reg,
		reconnector:           reconnector,
		interval:              interval,
		reconnectionThreshold: reconnectionThreshold,
		log:                   log.With().Str("component", "monitor").Logger(),
		nowFunc:               nowFunc,
		diag:                  diagSampler,
	}
}

// Run drives the periodic monitor loop until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	now := m.nowFunc()
	snapshots := m.reg.SnapshotByAPI()

	for apiID, snap := range snapshots {
		stalled, minPing, threshold := Evaluate(snap.Hits, snap.Timestamps, snap.StartTimes, now, m.reconnectionThreshold)
		if !stalled {
			continue
		}
		m.log.Warn().Str("api", apiID).Int64("minPing", minPing).Int64("threshold", threshold).Msg("API stalled, triggering reconnect")
		if err := m.reconnector.Reconnect(ctx, apiID); err != nil {
			m.log.Error().Err(err).Str("api", apiID).Msg("reconnect failed")
		}
	}

	m.ticks++
	if m.ticks%diagnosticEvery == 0 {
		m.printTable(now)
	}
}

// Evaluate implements the stall-detection formula over one API's per-feed
// counters:
//
//	rate          = Σ (60_000 / (now - start)) * hit
//	minPing       = min(now - timestamp)
//	threshold     = max(reconnectionThreshold / (0.5 + rate/feedCount/100), 10_000ms)
//	stalled       = minPing > threshold
func Evaluate(hits []uint64, timestamps, startTimes []int64, now, reconnectionThreshold int64) (stalled bool, minPing, threshold int64) {
	feedCount := len(hits)
	if feedCount == 0 {
		return false, 0, MinThreshold
	}

	var rate float64
	minPing = -1
	for i := range hits {
		elapsed := now - startTimes[i]
		if elapsed > 0 {
			rate += (60_000.0 / float64(elapsed)) * float64(hits[i])
		}
		ping := now - timestamps[i]
		if minPing < 0 || ping < minPing {
			minPing = ping
		}
	}

	raw := float64(reconnectionThreshold) / (0.5 + rate/float64(feedCount)/100)
	threshold = int64(raw)
	if threshold < MinThreshold {
		threshold = MinThreshold
	}

	return minPing > threshold, minPing, threshold
}

func (m *Monitor) printTable(now int64) {
	entries := m.reg.Snapshot()
	usage := m.diag.Sample()
	m.log.Info().
		Int("feeds", len(entries)).
		Float64("cpuPercent", usage.CPUPercent).
		Uint64("rssBytes", usage.RSSBytes).
		Msg("connection table snapshot")
	for _, e := range entries {
		m.log.Info().
			Str("pair", e.Exchange+":"+e.Pair).
			Str("api", e.APIID).
			Uint64("hit", e.Hit).
			Int64("idleMs", now-e.Timestamp).
			Msg("connection")
	}
}
