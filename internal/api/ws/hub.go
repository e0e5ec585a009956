// Package ws pushes change events to connected clients. It replaces the
// cross-tab storage listener of the browser era: every bus event goes out
// to every open socket, and clients re-fetch what they care about.
package ws

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dvloznov/devfinance/internal/events"
)

// Hub tracks open websocket connections.
type Hub struct {
	mu       sync.Mutex
	log      zerolog.Logger
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]bool
}

// NewHub creates an empty hub. Origin checks are disabled; the session
// middleware already gates the upgrade request.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]bool),
	}
}

// HandleWS handles GET /ws: upgrades the connection and keeps it until the
// client goes away.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.log.Info().Int("clients", count).Msg("Websocket client connected")

	// Drain the connection; clients only listen, so the first read error
	// means they are gone.
	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends the event to every connected client. Dead connections
// are dropped on write failure.
func (h *Hub) Broadcast(e events.Event) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(e); err != nil {
			h.log.Warn().Err(err).Msg("Dropping dead websocket client")
			h.remove(conn)
		}
	}
}

// ClientCount reports how many clients are connected.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.clients = make(map[*websocket.Conn]bool)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	_, present := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	if present {
		conn.Close()
	}
}
