package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/speedwagon-io/soilwatch/internal/dashboard"
	"github.com/speedwagon-io/soilwatch/internal/lib/logger/sl"
	"github.com/speedwagon-io/soilwatch/internal/model"
)

const writeWait = 5 * time.Second

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub pushes every report to the connected websocket clients. A new client
// receives the latest report right after the upgrade.
type Hub struct {
	log      *slog.Logger
	state    *dashboard.State
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

// NewHub creates the hub. With no allowed origins only same-origin upgrades
// are accepted; "*" accepts any origin.
func NewHub(log *slog.Logger, state *dashboard.State, allowedOrigins []string) *Hub {
	h := &Hub{
		log:     log.With(slog.String("component", "websocket")),
		state:   state,
		clients: make(map[*wsClient]struct{}),
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}
	if len(allowedOrigins) > 0 {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		}
	}

	return h
}

func (h *Hub) Name() string {
	return "websocket"
}

func (h *Hub) Present(_ context.Context, report *model.Report) error {
	data, err := report.ToJSON()
	if err != nil {
		return err
	}

	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.send(data); err != nil {
			h.log.Debug("dropping websocket client", sl.Err(err))
			h.remove(c)
		}
	}

	return nil
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", sl.Err(err))
		return
	}

	c := &wsClient{conn: conn}
	if !h.add(c) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	defer h.remove(c)

	if report, err := h.state.Latest(); err == nil {
		data, err := report.ToJSON()
		if err == nil {
			if err := c.send(data); err != nil {
				return
			}
		}
	}

	// Clients only listen; reading drives ping/pong and detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				h.log.Debug("websocket read failed", sl.Err(err))
			}
			return
		}
	}
}

// Count is the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		c.conn.Close()
		delete(h.clients, c)
	}
	return nil
}

func (h *Hub) add(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.conn.Close()
	}
}
