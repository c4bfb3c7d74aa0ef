// Package boltstore is a point-format storage driver that maintains a
// local OHLCV candle cache, bucketing incoming trades on Save and
// returning pre-bucketed bars on Fetch. Grounded on go.etcd.io/bbolt,
// present in cuemby/warren's dependency set, used the way that repo uses
// it: a single file-backed embedded KV store, one bucket per logical
// table.
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/horviskoadrianko/aggr-server/internal/persistence"
	"github.com/horviskoadrianko/aggr-server/internal/trade"
)

var candleBucket = []byte("candles")

// defaultTimeframe is the bucket width used when New gets 0; a real
// deployment runs one Store per timeframe of interest.
const defaultTimeframe = 60_000 // ms

// Store is a point-format persistence.Storage backed by bbolt.
type Store struct {
	path      string
	timeframe int64
	db        *bolt.DB
}

// New creates a Store bound to path, bucketing at timeframe ms (0 uses the
// 60s default). Connect opens the file.
func New(path string, timeframe int64) *Store {
	if timeframe <= 0 {
		timeframe = defaultTimeframe
	}
	return &Store{path: path, timeframe: timeframe}
}

func (s *Store) Name() string               { return "bolt" }
func (s *Store) Format() persistence.Format { return persistence.PointFormat }

// Connect opens the bbolt database file and ensures the candle bucket
// exists.
func (s *Store) Connect(ctx context.Context) error {
	db, err := bolt.Open(s.path, 0o600, nil)
	if err != nil {
		return fmt.Errorf("open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(candleBucket)
		return err
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("create candle bucket: %w", err)
	}
	s.db = db
	return nil
}

// Close releases the bbolt file handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// candleKey encodes "{exchange}:{pair}:" followed by the bucket start as a
// fixed-width big-endian suffix, so keys for the same market sort
// chronologically.
func candleKey(exchange, pair string, bucketStart int64) []byte {
	prefix := []byte(exchange + ":" + pair + ":")
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], uint64(bucketStart))
	return buf
}

// Save buckets each trade into its timeframe window and merges it into the
// existing candle for that (exchange, pair, bucket), read-modify-write.
func (s *Store) Save(ctx context.Context, batch []trade.Trade, isExitFlush bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(candleBucket)
		for _, t := range batch {
			bucketStart := (t.Timestamp / s.timeframe) * s.timeframe
			key := candleKey(t.Exchange, t.Pair, bucketStart)

			var candle trade.PointRecord
			if raw := b.Get(key); raw != nil {
				if err := json.Unmarshal(raw, &candle); err != nil {
					return fmt.Errorf("decode candle: %w", err)
				}
				candle.High = max(candle.High, t.Price)
				candle.Low = min(candle.Low, t.Price)
				candle.Close = t.Price
				candle.Volume += t.Size
			} else {
				candle = trade.PointRecord{
					Timeframe: s.timeframe, Time: bucketStart,
					Open: t.Price, High: t.Price, Low: t.Price, Close: t.Price, Volume: t.Size,
				}
			}

			raw, err := json.Marshal(candle)
			if err != nil {
				return fmt.Errorf("encode candle: %w", err)
			}
			if err := b.Put(key, raw); err != nil {
				return fmt.Errorf("put candle: %w", err)
			}
		}
		return nil
	})
}

// Fetch returns every candle bucket in [from, to] for the requested
// markets, ignoring q.Timeframe in favor of the store's own bucket width
// (callers select the right Store for the timeframe they want).
func (s *Store) Fetch(ctx context.Context, q persistence.FetchQuery) (persistence.FetchResult, error) {
	markets := make(map[string]bool, len(q.Markets))
	for _, m := range q.Markets {
		markets[m] = true
	}

	var out []trade.PointRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(candleBucket)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var candle trade.PointRecord
			if err := json.Unmarshal(v, &candle); err != nil {
				continue
			}
			if candle.Time < q.From || candle.Time > q.To {
				continue
			}
			if len(markets) > 0 && !marketMatches(string(k), markets) {
				continue
			}
			out = append(out, candle)
		}
		return nil
	})
	if err != nil {
		return persistence.FetchResult{}, fmt.Errorf("fetch candles: %w", err)
	}
	return persistence.FetchResult{Points: out}, nil
}

func marketMatches(key string, markets map[string]bool) bool {
	for m := range markets {
		if len(key) >= len(m) && key[:len(m)] == m {
			return true
		}
	}
	return false
}
