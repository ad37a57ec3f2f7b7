package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/PrasadTelasula/kaptivan-sub000/internal/layout"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/models"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/rbacgraph"
	"github.com/PrasadTelasula/kaptivan-sub000/internal/service"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512KB
)

// Message types sent to clients.
const (
	MessageTypeGraph = "graph"
	MessageTypeError = "error"
)

// graphRequestMessage is what a client sends: the filter and layout state to
// render. Omitted filter or layout keep the client's previous state.
type graphRequestMessage struct {
	RequestID  string                 `json:"request_id,omitempty"`
	SnapshotID string                 `json:"snapshot_id,omitempty"`
	Filter     *rbacgraph.FilterState `json:"filter,omitempty"`
	Layout     *layout.Options        `json:"layout,omitempty"`
}

// Client represents a WebSocket client
type Client struct {
	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	hub *Hub
	svc service.RBACGraphService

	ctx    context.Context
	cancel context.CancelFunc

	id           string
	snapshotID   string
	state        service.GraphRequest
	buildTimeout time.Duration
	log          *zap.Logger
}

// NewClient creates a new WebSocket client subscribed to snapshotID.
func NewClient(ctx context.Context, hub *Hub, svc service.RBACGraphService, conn *websocket.Conn, id, snapshotID string, buildTimeout time.Duration) *Client {
	clientCtx, cancel := context.WithCancel(ctx)
	return &Client{
		conn:         conn,
		send:         make(chan []byte, 256),
		hub:          hub,
		svc:          svc,
		ctx:          clientCtx,
		cancel:       cancel,
		id:           id,
		snapshotID:   snapshotID,
		state:        service.DefaultGraphRequest(),
		buildTimeout: buildTimeout,
		log:          hub.log.With(zap.String("client_id", id)),
	}
}

// ReadPump reads graph requests from the connection and answers each one.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.cancel()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		c.handleMessage(message)
	}
}

// WritePump pumps messages from the hub to the websocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return

		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.cancel()
}

// handleMessage merges a graph request into the client state and replies with
// the recomputed graph or an error message.
func (c *Client) handleMessage(message []byte) {
	var req graphRequestMessage
	if err := json.Unmarshal(message, &req); err != nil {
		c.reply(models.WebSocketMessage{Type: MessageTypeError, Error: "invalid message: " + err.Error()})
		return
	}
	if req.SnapshotID != "" {
		c.snapshotID = req.SnapshotID
	}
	if req.Filter != nil {
		c.state.Filter = *req.Filter
	}
	if req.Layout != nil {
		c.state.Layout = *req.Layout
	}
	if c.snapshotID == "" {
		c.reply(models.WebSocketMessage{Type: MessageTypeError, RequestID: req.RequestID, Error: "no snapshot selected"})
		return
	}

	ctx, cancel := c.ctx, context.CancelFunc(func() {})
	if c.buildTimeout > 0 {
		ctx, cancel = context.WithTimeout(c.ctx, c.buildTimeout)
	}
	defer cancel()

	g, err := c.svc.GetGraph(ctx, c.snapshotID, c.state)
	if err != nil {
		c.reply(models.WebSocketMessage{Type: MessageTypeError, SnapshotID: c.snapshotID, RequestID: req.RequestID, Error: err.Error()})
		return
	}
	c.reply(models.WebSocketMessage{Type: MessageTypeGraph, SnapshotID: c.snapshotID, RequestID: req.RequestID, Graph: g})
}

// reply queues a message for this client only. Messages are dropped when the
// client is gone or its buffer is full.
func (c *Client) reply(msg models.WebSocketMessage) {
	msg.Timestamp = time.Now()
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("failed to encode websocket message", zap.Error(err))
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
		c.log.Warn("websocket client buffer full, dropping reply")
	}
}
