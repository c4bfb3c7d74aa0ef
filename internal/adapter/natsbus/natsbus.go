// Package natsbus bridges the adapter.Controller/adapter.Sink contract
// over NATS subjects instead of in-process function pointers, grounded
// on adred-codev/ws_poc's pkg/nats/client.go (subject builder + JSON
// publish/subscribe pattern). A Bridge is a Sink: trades and lifecycle
// events published by a remote adapter process arrive on
// "feeds.<exchange>.trades" / "feeds.<exchange>.lifecycle" and are
// forwarded to a local adapter.Sink. It is also a Controller: reconnect/
// link/unlink calls are published to "feeds.<exchange>.control" for a
// remote adapter process to act on.
package natsbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/horviskoadrianko/aggr-server/internal/adapter"
	"github.com/horviskoadrianko/aggr-server/internal/trade"
)

func tradesSubject(exchange string) string    { return fmt.Sprintf("feeds.%s.trades", exchange) }
func lifecycleSubject(exchange string) string { return fmt.Sprintf("feeds.%s.lifecycle", exchange) }
func controlSubject(exchange string) string   { return fmt.Sprintf("feeds.%s.control", exchange) }

// lifecycleEvent is the envelope published on the lifecycle subject.
type lifecycleEvent struct {
	Kind     string `json:"kind"` // open, error, close, connected, disconnected
	Exchange string `json:"exchange"`
	Pair     string `json:"pair,omitempty"`
	APIID    string `json:"api_id,omitempty"`
	Message  string `json:"message,omitempty"`
}

// controlCommand is published to instruct a remote adapter process.
type controlCommand struct {
	Kind  string `json:"kind"` // reconnect, link, unlink
	APIID string `json:"api_id,omitempty"`
	Pair  string `json:"pair,omitempty"`
}

// Bridge connects one exchange's subjects to a local Sink and exposes a
// Controller that publishes control commands for a remote adapter.
type Bridge struct {
	conn     *nats.Conn
	exchange string
	id       string
	sink     adapter.Sink
	log      zerolog.Logger

	tradesSub, lifecycleSub *nats.Subscription
}

// Connect dials url and subscribes the given exchange's trades and
// lifecycle subjects, forwarding decoded events to sink.
func Connect(url, exchange string, sink adapter.Sink, log zerolog.Logger) (*Bridge, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	b := &Bridge{
		conn:     conn,
		exchange: exchange,
		id:       exchange,
		sink:     sink,
		log:      log.With().Str("component", "natsbus").Str("exchange", exchange).Logger(),
	}

	b.tradesSub, err = conn.Subscribe(tradesSubject(exchange), b.handleTrades)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe trades: %w", err)
	}
	b.lifecycleSub, err = conn.Subscribe(lifecycleSubject(exchange), b.handleLifecycle)
	if err != nil {
		b.tradesSub.Unsubscribe()
		conn.Close()
		return nil, fmt.Errorf("subscribe lifecycle: %w", err)
	}
	return b, nil
}

func (b *Bridge) handleTrades(msg *nats.Msg) {
	var batch []trade.Trade
	if err := json.Unmarshal(msg.Data, &batch); err != nil {
		b.log.Warn().Err(err).Msg("discarding malformed trades message")
		return
	}
	b.sink.OnTrades(b.exchange, batch)
}

func (b *Bridge) handleLifecycle(msg *nats.Msg) {
	var ev lifecycleEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		b.log.Warn().Err(err).Msg("discarding malformed lifecycle message")
		return
	}
	switch ev.Kind {
	case "open":
		b.sink.OnOpen(b.exchange)
	case "error":
		b.sink.OnError(b.exchange, fmt.Errorf("%s", ev.Message))
	case "close":
		b.sink.OnClose(b.exchange)
	case "connected":
		b.sink.OnConnected(b.exchange, ev.Pair, ev.APIID)
	case "disconnected":
		b.sink.OnDisconnected(b.exchange, ev.Pair)
	default:
		b.log.Warn().Str("kind", ev.Kind).Msg("unknown lifecycle event kind")
	}
}

// ID implements adapter.Controller.
func (b *Bridge) ID() string { return b.id }

// APIs implements adapter.Controller; the bridge itself owns no physical
// connections, so it reports none of its own — the remote process that
// owns the real API IDs publishes its own lifecycle events carrying them.
func (b *Bridge) APIs() []adapter.API { return nil }

// GetProductsAndConnect implements adapter.Controller by publishing a
// control command for the remote adapter process.
func (b *Bridge) GetProductsAndConnect(pairs []string) error {
	for _, p := range pairs {
		if err := b.publishControl(controlCommand{Kind: "link", Pair: p}); err != nil {
			return err
		}
	}
	return nil
}

// Link implements adapter.Controller.
func (b *Bridge) Link(pair string) error {
	return b.publishControl(controlCommand{Kind: "link", Pair: pair})
}

// Unlink implements adapter.Controller.
func (b *Bridge) Unlink(pair string) error {
	return b.publishControl(controlCommand{Kind: "unlink", Pair: pair})
}

// Reconnect implements adapter.Controller.
func (b *Bridge) Reconnect(apiID string) error {
	return b.publishControl(controlCommand{Kind: "reconnect", APIID: apiID})
}

func (b *Bridge) publishControl(cmd controlCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal control command: %w", err)
	}
	if err := b.conn.Publish(controlSubject(b.exchange), data); err != nil {
		return fmt.Errorf("publish control command: %w", err)
	}
	return nil
}

// Close tears down subscriptions and the connection.
func (b *Bridge) Close() {
	if b.tradesSub != nil {
		b.tradesSub.Unsubscribe()
	}
	if b.lifecycleSub != nil {
		b.lifecycleSub.Unsubscribe()
	}
	if b.conn != nil {
		b.conn.Close()
	}
}
