// Package persistence defines the storage driver contract and the
// Persistence Scheduler (C5): it swaps the in-memory chunk, writes to all
// configured storages, and reschedules the next flush on a wall-clock
// aligned boundary. Grounded on the teacher's persist/retention.go and
// internal/archive/archiver.go, which share the same ticker-loop,
// one-bounded-unit-of-work-per-tick shape generalized here to a
// chunk-swap discipline.
package persistence

import (
	"context"

	"github.com/horviskoadrianko/aggr-server/internal/trade"
)

// Format is a closed enum of storage driver kinds, replacing the "trade" /
// "point" string comparisons the REDESIGN FLAGS call out — callers switch
// on the typed value, not on a string.
type Format int

const (
	TradeFormat Format = iota
	PointFormat
)

func (f Format) String() string {
	if f == PointFormat {
		return "point"
	}
	return "trade"
}

// FetchQuery is the input to Storage.Fetch.
type FetchQuery struct {
	From      int64
	To        int64
	Timeframe int64
	Markets   []string
}

// FetchResult is the polymorphic output of Storage.Fetch: exactly one of
// Trades or Points is populated, gated by the driver's Format().
type FetchResult struct {
	Trades []trade.Trade
	Points []trade.PointRecord
}

// Storage is the contract every persistence backend implements. Connect is
// optional — drivers that need no handshake may no-op it.
type Storage interface {
	Name() string
	Format() Format
	Connect(ctx context.Context) error
	Save(ctx context.Context, batch []trade.Trade, isExitFlush bool) error
	Fetch(ctx context.Context, q FetchQuery) (FetchResult, error)
}
