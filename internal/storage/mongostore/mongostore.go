// Package mongostore is the primary trade-format storage driver, grounded
// directly on the teacher's internal/persist/store.go and
// internal/persist/queries.go.
package mongostore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/horviskoadrianko/aggr-server/internal/persistence"
	"github.com/horviskoadrianko/aggr-server/internal/trade"
)

// Store is a trade-format persistence.Storage backed by MongoDB.
type Store struct {
	uri    string
	client *mongo.Client
	db     *mongo.Database
}

// New creates a Store bound to uri. Connect must be called before use.
func New(uri string) *Store {
	return &Store{uri: uri}
}

func (s *Store) Name() string               { return "mongo" }
func (s *Store) Format() persistence.Format { return persistence.TradeFormat }

// Connect opens the MongoDB connection and ensures indexes exist, mirroring
// persist.Store.Migrate.
func (s *Store) Connect(ctx context.Context) error {
	clientOpts := options.Client().ApplyURI(s.uri)
	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return fmt.Errorf("ping mongodb: %w", err)
	}

	dbName := "aggr"
	if u, err := url.Parse(s.uri); err == nil {
		if name := strings.TrimPrefix(u.Path, "/"); name != "" {
			dbName = name
		}
	}
	s.client = client
	s.db = client.Database(dbName)

	_, err = s.db.Collection("trades").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "exchange", Value: 1}, {Key: "pair", Value: 1}, {Key: "timestamp", Value: 1}}},
		{Keys: bson.D{{Key: "timestamp", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}
	return nil
}

// tradeDoc is the BSON shape trades are persisted as.
type tradeDoc struct {
	Exchange    string  `bson:"exchange"`
	Pair        string  `bson:"pair"`
	Timestamp   int64   `bson:"timestamp"`
	Side        string  `bson:"side"`
	Price       float64 `bson:"price"`
	Size        float64 `bson:"size"`
	Liquidation bool    `bson:"liquidation"`
}

// Save writes a batch of trades. isExitFlush has no bearing on Mongo
// semantics; it exists purely to satisfy the Storage interface.
func (s *Store) Save(ctx context.Context, batch []trade.Trade, isExitFlush bool) error {
	docs := make([]any, len(batch))
	for i, t := range batch {
		docs[i] = tradeDoc{
			Exchange: t.Exchange, Pair: t.Pair, Timestamp: t.Timestamp,
			Side: t.Side.String(), Price: t.Price, Size: t.Size, Liquidation: t.Liquidation,
		}
	}
	_, err := s.db.Collection("trades").InsertMany(ctx, docs)
	if err != nil {
		return fmt.Errorf("insert trades: %w", err)
	}
	return nil
}

// Fetch implements a trade-format range fetch, grounded on
// persist/queries.go's QueryTrades.
func (s *Store) Fetch(ctx context.Context, q persistence.FetchQuery) (persistence.FetchResult, error) {
	filter := bson.M{
		"timestamp": bson.M{"$gte": q.From, "$lte": q.To},
	}
	if len(q.Markets) > 0 {
		or := make([]bson.M, 0, len(q.Markets))
		for _, m := range q.Markets {
			parts := strings.SplitN(m, ":", 2)
			if len(parts) == 2 {
				or = append(or, bson.M{"exchange": parts[0], "pair": parts[1]})
			}
		}
		if len(or) > 0 {
			filter["$or"] = or
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cursor, err := s.db.Collection("trades").Find(ctx, filter, opts)
	if err != nil {
		return persistence.FetchResult{}, fmt.Errorf("query trades: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []tradeDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return persistence.FetchResult{}, fmt.Errorf("decode trades: %w", err)
	}

	out := make([]trade.Trade, len(docs))
	for i, d := range docs {
		side := trade.Buy
		if d.Side == trade.Sell.String() {
			side = trade.Sell
		}
		out[i] = trade.Trade{
			Exchange: d.Exchange, Pair: d.Pair, Timestamp: d.Timestamp,
			Side: side, Price: d.Price, Size: d.Size, Liquidation: d.Liquidation,
		}
	}
	return persistence.FetchResult{Trades: out}, nil
}

// Close disconnects from MongoDB.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
