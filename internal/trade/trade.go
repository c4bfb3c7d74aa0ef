// Package trade defines the normalized trade record and the handful of
// related value types shared across the ingestion, aggregation, broadcast,
// and persistence paths.
package trade

import "fmt"

// Side is the taker side of a trade.
type Side byte

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "sell"
	}
	return "buy"
}

// Trade is the immutable-on-receipt normalized trade tuple. Timestamp is
// milliseconds since epoch. The struct's field order is not the positional
// wire order: MarshalPositional moves Timestamp to index 1.
type Trade struct {
	Exchange    string
	Pair        string
	Timestamp   int64
	Side        Side
	Price       float64
	Size        float64
	Liquidation bool
}

// Key returns the "{exchange}:{pair}" identifier used throughout the
// registry, aggregator, and broadcast paths.
func (t Trade) Key() string {
	return Key(t.Exchange, t.Pair)
}

// Key builds the "{exchange}:{pair}" pair key from its parts.
func Key(exchange, pair string) string {
	return exchange + ":" + pair
}

// Positional is the ordered wire record: [exchange, timestamp, pair, side,
// price, size, liquidation], with the timestamp at index 1. No storage
// driver writes this shape and the historical handler's tail merge reads
// Trade.Timestamp directly; nothing in the server calls MarshalPositional.
type Positional [7]any

// MarshalPositional produces the ordered positional wire record for a trade.
func (t Trade) MarshalPositional() Positional {
	return Positional{t.Exchange, t.Timestamp, t.Pair, t.Side.String(), t.Price, t.Size, t.Liquidation}
}

// IndexedProduct aggregates which exchanges offer a given pair symbol.
// Populated from adapter `index` events; append-only for process lifetime.
type IndexedProduct struct {
	Value     string
	Count     int
	Exchanges []string
}

// PointRecord is a pre-bucketed OHLCV bar produced by point-format storage
// drivers. The historical handler passes trade-format output through as
// trades and does not bucket it.
type PointRecord struct {
	Timeframe int64
	Time      int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

func (t Trade) String() string {
	return fmt.Sprintf("%s %s@%.8f x%.8f t=%d", t.Key(), t.Side, t.Price, t.Size, t.Timestamp)
}
