// Package adapter defines the bidirectional exchange-adapter contract
// exchanges expose a Controller surface the core
// uses to instruct reconnection/link changes, and the core exposes a Sink
// surface adapters call to publish trades and lifecycle events. No object
// graph cycle is required — wiring is explicit registration at startup.
package adapter

import "github.com/horviskoadrianko/aggr-server/internal/trade"

// API describes one physical upstream connection an adapter owns; a
// single API may carry multiple pairs (feeds).
type API struct {
	ID string
}

// Controller is implemented by exchange adapters and called by the core
// (specifically the Activity Monitor, via Reconnect).
type Controller interface {
	// ID returns the exchange identifier this controller manages.
	ID() string
	// APIs returns the adapter's current set of upstream connections.
	APIs() []API
	// GetProductsAndConnect subscribes to the given pairs, opening
	// whatever upstream connections are required.
	GetProductsAndConnect(pairs []string) error
	// Link subscribes an additional pair on an already-open connection.
	Link(pair string) error
	// Unlink unsubscribes a pair.
	Unlink(pair string) error
	// Reconnect tears down and re-establishes the named API connection,
	// rippling as Disconnected then Connected events for all its pairs.
	Reconnect(apiID string) error
}

// Sink is implemented by the core and called by exchange adapters to
// publish trade batches and lifecycle events.
type Sink interface {
	// OnTrades delivers a batch of normalized trades from a single
	// `trades` or `liquidations` adapter event — the contract makes no
	// distinction between the two channels.
	OnTrades(exchange string, batch []trade.Trade)
	// OnIndex delivers `index` events: indexed-product updates.
	OnIndex(products []trade.IndexedProduct)
	// OnOpen signals the adapter's underlying transport opened.
	OnOpen(exchange string)
	// OnError signals an adapter-level error.
	OnError(exchange string, err error)
	// OnClose signals the adapter's underlying transport closed.
	OnClose(exchange string)
	// OnConnected registers a live (exchange, pair) feed against apiID.
	OnConnected(exchange, pair, apiID string)
	// OnDisconnected removes a live (exchange, pair) feed.
	OnDisconnected(exchange, pair string)
}
