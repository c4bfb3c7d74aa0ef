package broadcast

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/horviskoadrianko/aggr-server/internal/trade"
)

// Frame is the two-element data frame sent to clients: [pairKey, trades].
// A client receives at most one frame per pair per dispatch tick.
type Frame [2]any

// Manager tracks broadcast clients and drains the pending queues into
// dispatch ticks. It owns both C4 (dispatch) and C8 (session tracking) the
// way the teacher's single session.Manager owns client registration and
// fan-out together.
type Manager struct {
	mu         sync.RWMutex
	clients    map[string]*Client
	bufferSize int
	log        zerolog.Logger

	// delayed is the debounced-mode queue, guarded by qmu. The
	// aggregated-mode queue lives in the aggregate package.
	qmu       sync.Mutex
	delayed   []trade.Trade
	broadcast prometheus.Counter
	dropped   prometheus.Counter
}

// New creates an empty broadcast Manager.
func New(bufferSize int, log zerolog.Logger, reg prometheus.Registerer) *Manager {
	m := &Manager{
		clients:    make(map[string]*Client),
		bufferSize: bufferSize,
		log:        log.With().Str("component", "broadcast").Logger(),
		broadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggr_broadcast_sends_total",
			Help: "Number of trade frames sent to clients.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggr_broadcast_dropped_total",
			Help: "Number of trade frames dropped due to full client buffers.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.broadcast, m.dropped)
	}
	return m
}

// Register adds a new client, mirroring session.Manager.Register.
func (m *Manager) Register(conn *websocket.Conn, initialPairs []string) *Client {
	c := NewClient(conn, m.bufferSize, initialPairs)
	m.mu.Lock()
	m.clients[c.ID] = c
	m.mu.Unlock()
	m.log.Info().Str("client", c.ID).Strs("pairs", initialPairs).Msg("client connected")
	return c
}

// Unregister removes a client and closes its connection.
func (m *Manager) Unregister(c *Client) {
	m.mu.Lock()
	delete(m.clients, c.ID)
	m.mu.Unlock()
	c.Close()
	m.log.Info().Str("client", c.ID).Msg("client disconnected")
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// BroadcastJSON sends a JSON envelope to every connected client. Used for
// lifecycle events (welcome, exchange_connected, exchange_disconnected,
// exchange_error).
func (m *Manager) BroadcastJSON(obj any) {
	data, err := json.Marshal(obj)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to marshal broadcast envelope")
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.clients {
		c.Send(data)
	}
}

// SendToClient sends a JSON envelope to a single client (e.g. the welcome
// message on connect).
func (m *Manager) SendToClient(c *Client, obj any) {
	data, err := json.Marshal(obj)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to marshal client envelope")
		return
	}
	c.Send(data)
}

// BroadcastTrades groups trades by pair key and, for each open socket,
// iterates its subscribed pairs in order and sends one frame per pair
// The incoming slice is copied before grouping so that callers are
// free to keep appending to their own buffer afterward.
func (m *Manager) BroadcastTrades(batch []trade.Trade) {
	if len(batch) == 0 {
		return
	}
	batch = append([]trade.Trade(nil), batch...)

	byPair := make(map[string][]trade.Trade, len(batch))
	for _, t := range batch {
		key := t.Key()
		byPair[key] = append(byPair[key], t)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.clients {
		pairs := c.Pairs()
		sort.Strings(pairs)
		for _, pair := range pairs {
			trades, ok := byPair[pair]
			if !ok {
				continue
			}
			frame := Frame{pair, trades}
			data, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			if c.Send(data) {
				m.broadcast.Inc()
			} else {
				m.dropped.Inc()
			}
		}
	}
}

// Enqueue appends a batch to the debounced queue, draining it on the next
// debounce tick.
func (m *Manager) Enqueue(batch []trade.Trade) {
	m.qmu.Lock()
	m.delayed = append(m.delayed, batch...)
	m.qmu.Unlock()
}

// DrainDebounced empties the debounced queue and dispatches it, called on
// each broadcastDebounce tick.
func (m *Manager) DrainDebounced() {
	m.qmu.Lock()
	batch := m.delayed
	m.delayed = nil
	m.qmu.Unlock()
	m.BroadcastTrades(batch)
}
