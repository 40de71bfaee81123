package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SnapshotFunc builds the dashboard payload broadcast on every interval.
type SnapshotFunc func() any

// Hub fans a periodic portfolio snapshot out to every connected dashboard
// websocket. Clients that fail a write are dropped.
type Hub struct {
	snapshot SnapshotFunc
	interval time.Duration

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewHub(snapshot SnapshotFunc, interval time.Duration) *Hub {
	return &Hub{
		snapshot: snapshot,
		interval: interval,
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

// Handler upgrades a dashboard connection and sends an immediate snapshot so
// the page renders without waiting a full interval. The snapshot goes out
// before the conn is registered: gorilla/websocket allows a single writer
// per connection, and once registered the broadcast loop owns the writes.
func (h *Hub) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("dashboard upgrade failed")
		return
	}

	if payload, err := json.Marshal(h.snapshot()); err == nil {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			return
		}
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	log.Info().Int("clients", n).Msg("dashboard client connected")
}

// Run broadcasts snapshots until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			payload, err := json.Marshal(h.snapshot())
			if err != nil {
				log.Error().Err(err).Msg("snapshot marshal failed")
				continue
			}
			h.broadcast(payload)
		}
	}
}

func (h *Hub) broadcast(payload []byte) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		h.send(conn, payload)
	}
}

func (h *Hub) send(conn *websocket.Conn, payload []byte) {
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		conn.Close()
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

// Clients reports the connected dashboard count.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
