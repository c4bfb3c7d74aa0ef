// Package broadcast implements the Broadcast Dispatcher (C4) and the
// Client Session Manager (C8). Grounded directly on the teacher's
// internal/session package (client.go, manager.go, handler.go): the
// per-client buffered send channel with drop-on-full semantics, the
// write pump doing ping/pong keep-alive, and the read pump parsing
// inbound control text are all kept in shape. The rewrite changes
// subscription keys from ticker symbols to "{exchange}:{pair}" pair keys
// and the outbound frame from a single-format message to the spec's
// two-element [pairKey, trades] array.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client represents a connected broadcast WebSocket client. Session state
// (the subscribed pair set) lives here, modeling a client session.
type Client struct {
	ID   string
	Conn *websocket.Conn

	mu    sync.RWMutex
	pairs map[string]bool

	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once

	Dropped uint64
}

// NewClient wraps a WebSocket connection in a Client with the given
// initial pair subscriptions (parsed from the connection URL).
func NewClient(conn *websocket.Conn, bufferSize int, initialPairs []string) *Client {
	c := &Client{
		ID:     uuid.NewString(),
		Conn:   conn,
		pairs:  make(map[string]bool, len(initialPairs)),
		sendCh: make(chan []byte, bufferSize),
		done:   make(chan struct{}),
	}
	for _, p := range initialPairs {
		c.pairs[p] = true
	}
	return c
}

// ReplaceSubscription replaces the client's entire subscription set,
// implementing the inbound "A+B+C" control message semantics.
func (c *Client) ReplaceSubscription(pairs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairs = make(map[string]bool, len(pairs))
	for _, p := range pairs {
		c.pairs[p] = true
	}
}

// Pairs returns the client's subscribed pair keys in no particular order;
// BroadcastTrades sorts them before iterating.
func (c *Client) Pairs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.pairs))
	for p := range c.pairs {
		out = append(out, p)
	}
	return out
}

// IsSubscribed reports whether the client wants trades for a pair key.
func (c *Client) IsSubscribed(pairKey string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pairs[pairKey]
}

// Send enqueues data for the write pump. Returns false and increments
// Dropped if the buffer is full — backpressure is absent by design.
func (c *Client) Send(data []byte) bool {
	select {
	case c.sendCh <- data:
		return true
	default:
		atomic.AddUint64(&c.Dropped, 1)
		return false
	}
}

// SendCh exposes the outbound channel to the write pump.
func (c *Client) SendCh() <-chan []byte { return c.sendCh }

// Done is closed when the client disconnects.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close terminates the client connection exactly once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.Conn.Close()
	})
}
