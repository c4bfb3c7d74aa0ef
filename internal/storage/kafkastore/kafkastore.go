// Package kafkastore is a trade-format fire-and-forget sink storage
// driver, grounded on github.com/twmb/franz-go (present in
// adred-codev/ws_poc/go-server's dependency set). Fetch is unsupported:
// Kafka is a write-behind sink for downstream consumers, not a queryable
// store, so this driver is intended to run alongside mongostore rather
// than as the primary.
package kafkastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/horviskoadrianko/aggr-server/internal/persistence"
	"github.com/horviskoadrianko/aggr-server/internal/trade"
)

// ErrFetchUnsupported is returned by Fetch: Kafka is write-only here.
var ErrFetchUnsupported = errors.New("kafkastore: fetch not supported")

// Store is a trade-format persistence.Storage backed by a Kafka topic.
type Store struct {
	brokers []string
	topic   string
	client  *kgo.Client
}

// New creates a Store targeting the given brokers and topic. Connect must
// be called before use.
func New(brokers []string, topic string) *Store {
	return &Store{brokers: brokers, topic: topic}
}

func (s *Store) Name() string               { return "kafka" }
func (s *Store) Format() persistence.Format { return persistence.TradeFormat }

// Connect establishes the Kafka client.
func (s *Store) Connect(ctx context.Context) error {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(s.brokers...),
		kgo.DefaultProduceTopic(s.topic),
	)
	if err != nil {
		return fmt.Errorf("create kafka client: %w", err)
	}
	s.client = client
	return nil
}

// Close releases the Kafka client.
func (s *Store) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

// Save publishes each trade as a JSON-encoded record, keyed by pair so a
// consumer group can partition by market.
func (s *Store) Save(ctx context.Context, batch []trade.Trade, isExitFlush bool) error {
	var firstErr error
	wait := make(chan error, len(batch))
	for _, t := range batch {
		payload, err := json.Marshal(t)
		if err != nil {
			wait <- err
			continue
		}
		rec := &kgo.Record{Key: []byte(t.Key()), Value: payload, Topic: s.topic}
		s.client.Produce(ctx, rec, func(_ *kgo.Record, err error) {
			wait <- err
		})
	}
	for range batch {
		if err := <-wait; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return fmt.Errorf("produce to kafka: %w", firstErr)
	}
	return nil
}

// Fetch is unsupported for the Kafka sink.
func (s *Store) Fetch(ctx context.Context, q persistence.FetchQuery) (persistence.FetchResult, error) {
	return persistence.FetchResult{}, ErrFetchUnsupported
}
