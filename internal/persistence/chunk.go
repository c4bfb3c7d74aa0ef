package persistence

import (
	"sync"

	"github.com/horviskoadrianko/aggr-server/internal/trade"
)

// Chunk is the pending-persistence buffer: a monotonically growing
// ordered sequence of trades, drained atomically by swap-and-replace.
// Only the Ingestion Router appends; only the Persistence Scheduler drains.
type Chunk struct {
	mu      sync.Mutex
	pending []trade.Trade
}

// NewChunk creates an empty chunk.
func NewChunk() *Chunk {
	return &Chunk{}
}

// Append adds a trade to the chunk. Called only from the Ingestion Router.
func (c *Chunk) Append(t trade.Trade) {
	c.mu.Lock()
	c.pending = append(c.pending, t)
	c.mu.Unlock()
}

// AppendBatch adds a batch of trades in order, preserving arrival order
// within the batch.
func (c *Chunk) AppendBatch(batch []trade.Trade) {
	c.mu.Lock()
	c.pending = append(c.pending, batch...)
	c.mu.Unlock()
}

// Swap atomically replaces the pending slice with an empty one and returns
// the removed contents. A crash between Swap and a storage Save loses at
// most one in-flight batch; concurrent Append calls during the save
// never mix with the flushed batch because they land in the new slice.
func (c *Chunk) Swap() []trade.Trade {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch := c.pending
	c.pending = nil
	return batch
}

// Snapshot returns a copy of the currently pending trades without draining
// them. Used by the Historical Query Handler to merge the unflushed tail.
func (c *Chunk) Snapshot() []trade.Trade {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]trade.Trade, len(c.pending))
	copy(out, c.pending)
	return out
}

// Len reports the number of trades currently pending flush.
func (c *Chunk) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
