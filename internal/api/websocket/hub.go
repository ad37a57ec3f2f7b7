// Package websocket pushes recomputed graphs and snapshot changes to browser clients.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/pkg/metrics"
)

// Hub maintains active WebSocket connections and broadcasts messages
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound messages for every client
	broadcast chan []byte

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	mu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(ctx context.Context, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	hubCtx, cancel := context.WithCancel(ctx)
	return &Hub{
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		ctx:        hubCtx,
		cancel:     cancel,
		log:        log,
	}
}

// Run starts the hub
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			metrics.WebSocketConnectionsActive.Inc()

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client buffer full, drop the connection
					close(client.send)
					delete(h.clients, client)
					metrics.WebSocketConnectionsActive.Dec()
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		metrics.WebSocketConnectionsActive.Dec()
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
		metrics.WebSocketConnectionsActive.Dec()
	}
}

// BroadcastSnapshotEvent tells every client that a stored snapshot changed.
// It never blocks; the event is dropped when the hub is stopped or saturated.
func (h *Hub) BroadcastSnapshotEvent(event, snapshotID string) {
	data, err := json.Marshal(models.WebSocketMessage{
		Type:       event,
		SnapshotID: snapshotID,
		Timestamp:  time.Now(),
	})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.ctx.Done():
	default:
		h.log.Warn("websocket broadcast queue full, dropping event", zap.String("event", event), zap.String("snapshot_id", snapshotID))
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
