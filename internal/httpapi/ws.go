package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agent-mail/mailserver/internal/events"
)

// wsHub fans events.BusEvent values out to connected websocket clients,
// grounded on terraphim-ntm/internal/serve.WSHub's register/unregister/
// broadcast loop, simplified to a single implicit topic (this server has
// one event stream, not per-pane topics) and driven directly off an
// events.EventBus subscription instead of a bespoke Publish call.
type wsHub struct {
	bus *events.EventBus

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func newWSHub(bus *events.EventBus) *wsHub {
	return &wsHub{bus: bus, clients: make(map[*wsClient]struct{})}
}

// run subscribes to the bus for the hub's lifetime, broadcasting every
// event to every connected client. A nil bus means the websocket endpoint
// still upgrades but never has anything to forward.
func (h *wsHub) run() {
	if h.bus == nil {
		return
	}
	h.bus.SubscribeAll(func(ev events.BusEvent) {
		data, err := json.Marshal(ev)
		if err != nil {
			slog.Error("ws event marshal failed", "error", err)
			return
		}
		h.broadcast(data)
	})
}

func (h *wsHub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slog.Debug("ws client buffer full, dropping event")
		}
	}
}

func (h *wsHub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *wsHub) unregister(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// handleWS upgrades the connection and streams every published MailEvent
// to it until the client disconnects. There's no subscription protocol:
// a connected client gets everything, matching SPEC_FULL.md's "live inbox
// stream" scope (a single unfiltered firehose, not per-topic routing).
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("ws upgrade failed", "error", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, 64)}
	s.hub.register(client)

	go wrapPanicking(func() { s.wsWritePump(client) })
	s.wsReadPump(client)
}

// wsReadPump only exists to detect client disconnects and to answer
// pong frames; this stream is one-directional (server to client).
func (s *Server) wsReadPump(c *wsClient) {
	defer func() {
		s.hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) wsWritePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
