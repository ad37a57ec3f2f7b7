package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/pkg/validate"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/service"
)

// Handler handles WebSocket connections
type Handler struct {
	hub          *Hub
	svc          service.RBACGraphService
	ctx          context.Context
	upgrader     websocket.Upgrader
	buildTimeout time.Duration
}

// NewHandler creates a new WebSocket handler. allowedOrigins restricts the
// Origin header; empty or "*" allows any origin.
func NewHandler(ctx context.Context, hub *Hub, svc service.RBACGraphService, allowedOrigins []string, buildTimeout time.Duration) *Handler {
	return &Handler{
		hub:          hub,
		svc:          svc,
		ctx:          ctx,
		buildTimeout: buildTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || len(set) == 0 || set[origin]
	}
}

// ServeWS handles GET /ws/rbac-graph?snapshot=<id>
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	snapshotID := r.URL.Query().Get("snapshot")
	if snapshotID != "" && !validate.SnapshotID(snapshotID) {
		http.Error(w, "invalid snapshot id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	clientID := uuid.New().String()
	client := NewClient(h.ctx, h.hub, h.svc, conn, clientID, snapshotID, h.buildTimeout)

	select {
	case h.hub.register <- client:
	case <-h.hub.ctx.Done():
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()

	h.hub.log.Debug("websocket client connected", zap.String("client_id", clientID), zap.String("snapshot_id", snapshotID))
}
