package broadcast

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
)

// closeCodeLabels maps notable WebSocket close codes for logging to a
// human-readable label, grounded on gorilla/websocket's exported
// constants (the same package the teacher's readPump already inspects via
// websocket.IsUnexpectedCloseError).
var closeCodeLabels = map[int]string{
	websocket.CloseProtocolError:           "protocol error",
	websocket.CloseUnsupportedData:         "unsupported data",
	websocket.CloseInvalidFramePayloadData: "invalid frame payload data",
	websocket.ClosePolicyViolation:         "policy violation",
	websocket.CloseMessageTooBig:           "message too big",
	websocket.CloseMandatoryExtension:      "mandatory extension missing",
	websocket.CloseInternalServerErr:       "internal server error",
	websocket.CloseServiceRestart:          "service restart",
	websocket.CloseTryAgainLater:           "try again later",
	1014:                                   "bad gateway",
	websocket.CloseTLSHandshake:            "TLS handshake failure",
}

// Handler builds the HTTP upgrade handler for the WebSocket surface.
// Origin and ban-list rejection happen in the caller's middleware chain
// (the caller's delayed-500 policy response) before a request ever reaches
// here; Handler only deals with the upgrade and pump lifecycle.
func Handler(mgr *Manager, upgrader websocket.Upgrader, log zerolog.Logger, onConnect func(c *Client)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pairs := parsePathPairs(r.URL.Path)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("websocket upgrade failed")
			return
		}

		client := mgr.Register(conn, pairs)
		if onConnect != nil {
			onConnect(client)
		}

		go writePump(client, log)
		go readPump(client, mgr, log)
	}
}

// parsePathPairs parses the "+"-delimited pair list from the URL path
// tail, per the WebSocket surface contract.
func parsePathPairs(path string) []string {
	tail := path
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		tail = path[idx+1:]
	}
	tail = strings.TrimSpace(tail)
	if tail == "" {
		return nil
	}
	return strings.Split(tail, "+")
}

func readPump(c *Client, mgr *Manager, log zerolog.Logger) {
	defer mgr.Unregister(c)

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			logClose(c, log, err)
			return
		}

		pairs := strings.Split(strings.TrimSpace(string(message)), "+")
		c.ReplaceSubscription(pairs)
		log.Debug().Str("client", c.ID).Strs("pairs", pairs).Msg("client updated subscription")
	}
}

// logClose logs unusual close codes with a human-readable label.
func logClose(c *Client, log zerolog.Logger, err error) {
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		return
	}
	if label, unusual := closeCodeLabels[closeErr.Code]; unusual {
		log.Warn().Str("client", c.ID).Int("code", closeErr.Code).Str("reason", label).Msg("client closed with unusual code")
	}
}

func writePump(c *Client, log zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data, ok := <-c.SendCh():
			if !ok {
				return
			}
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.Done():
			return
		}
	}
}
