// Package query implements the Historical Query Handler (C7): it serves
// range fetches and merges storage output with the still-buffered tail.
//
// Grounded on the teacher's internal/api/handlers.go handleTrades /
// handleCandles (parseIntParam/parseTimeParam helpers, writeJSON/
// writeError pattern), generalized from a single Mongo reader to the
// persistence.Storage interface's closed trade/point format enum, and
// extended with tail-merge behavior against the live chunk.
package query

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/horviskoadrianko/aggr-server/internal/persistence"
	"github.com/horviskoadrianko/aggr-server/internal/trade"
)

// Sentinel errors mapped to HTTP status codes by the transport layer,
// matching a client/not-found/disabled/server error categorization.
var (
	ErrMissingInterval = errors.New("missing interval")
	ErrTooManyBars     = errors.New("too many bars")
	ErrDisabled        = errors.New("historical API disabled")
	ErrNotFound        = errors.New("empty storage response")
)

const defaultTimeframe = 60_000 // ms

// Request is the parsed input to Handle.
type Request struct {
	From      int64
	To        int64
	Timeframe int64 // 0 means "use default"
	Markets   []string
}

// Response is the output shape: { format, results }.
type Response struct {
	Format  persistence.Format
	Trades  []trade.Trade
	Points  []trade.PointRecord
}

// MarshalJSON encodes the response as {"format": "trade"|"point",
// "results": [...]}, taking results from Trades or Points by Format.
func (r Response) MarshalJSON() ([]byte, error) {
	var results any = r.Trades
	if r.Format == persistence.PointFormat {
		results = r.Points
	}
	return json.Marshal(struct {
		Format  string `json:"format"`
		Results any    `json:"results"`
	}{r.Format.String(), results})
}

// Handler serves historical queries against a primary storage plus the
// live chunk.
type Handler struct {
	storage        persistence.Storage
	chunk          *persistence.Chunk
	maxFetchLength int64
}

// New creates a Handler. storage may be nil, in which case Handle returns
// ErrDisabled.
func New(storage persistence.Storage, chunk *persistence.Chunk, maxFetchLength int64) *Handler {
	return &Handler{storage: storage, chunk: chunk, maxFetchLength: maxFetchLength}
}

// Handle runs the historical query end to end.
func (h *Handler) Handle(ctx context.Context, req Request) (Response, error) {
	if h.storage == nil {
		return Response{}, ErrDisabled
	}

	from, to := req.From, req.To
	if from > to {
		from, to = to, from
	}

	timeframe := req.Timeframe
	if timeframe <= 0 {
		timeframe = defaultTimeframe
	}

	q := persistence.FetchQuery{From: from, To: to, Timeframe: timeframe, Markets: req.Markets}

	if h.storage.Format() == persistence.PointFormat {
		q.From = floorTo(from, timeframe)
		q.To = ceilTo(to, timeframe)
		length := (q.To - q.From) / timeframe
		if length > h.maxFetchLength {
			return Response{}, ErrTooManyBars
		}
	}

	result, err := h.storage.Fetch(ctx, q)
	if err != nil {
		return Response{}, err
	}

	if h.storage.Format() == persistence.TradeFormat {
		if h.chunk != nil {
			result.Trades = append(result.Trades, tailMerge(h.chunk.Snapshot(), from, to)...)
		}
		if len(result.Trades) == 0 {
			return Response{}, ErrNotFound
		}
		return Response{Format: persistence.TradeFormat, Trades: result.Trades}, nil
	}

	if len(result.Points) == 0 {
		return Response{}, ErrNotFound
	}
	return Response{Format: persistence.PointFormat, Points: result.Points}, nil
}

// tailMerge appends every buffered trade whose timestamp strictly falls in
// (from, to): skip trades where timestamp <= from OR
// timestamp >= to.
func tailMerge(buffered []trade.Trade, from, to int64) []trade.Trade {
	out := make([]trade.Trade, 0, len(buffered))
	for _, t := range buffered {
		if t.Timestamp <= from || t.Timestamp >= to {
			continue
		}
		out = append(out, t)
	}
	return out
}

func floorTo(v, step int64) int64 {
	if step <= 0 {
		return v
	}
	return (v / step) * step
}

func ceilTo(v, step int64) int64 {
	if step <= 0 {
		return v
	}
	return ((v + step - 1) / step) * step
}
