// Package ws is the websocket transport: it owns the connection registry and
// per-room broadcast groups, delivers the engine's events to clients, and
// feeds connection lifecycle transitions into the presence path.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rpssl/gameserver/internal/game/events"
	"github.com/rpssl/gameserver/internal/observability"
)

// MessageHandler consumes inbound client commands.
type MessageHandler interface {
	Handle(ctx context.Context, c *Client, raw []byte)
}

// PresenceHandler receives identity-level connect and disconnect transitions.
// HandleReconnect reports the room the identity should be regrouped into.
type PresenceHandler interface {
	HandleDisconnect(ctx context.Context, identity string)
	HandleReconnect(ctx context.Context, identity string) (uuid.UUID, bool)
}

// Hub is the connection registry and broadcast fan-out. It implements
// events.Publisher; all delivery is fire-and-forget.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client            // conn id -> client
	perIdent map[string]int                // identity -> live connection count
	groups   map[string]map[string]*Client // room id -> conn id -> client

	handler  MessageHandler
	presence PresenceHandler

	upgrader websocket.Upgrader
	metrics  *observability.Metrics
	logger   *zap.Logger
}

var _ events.Publisher = (*Hub)(nil)

// NewHub creates a Hub. Bind must be called before Serve.
func NewHub(metrics *observability.Metrics, logger *zap.Logger) *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		perIdent: make(map[string]int),
		groups:   make(map[string]map[string]*Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		metrics: metrics,
		logger:  logger,
	}
}

// Bind wires the inbound command handler and the presence hooks. The hub is
// constructed before the coordinators because they publish through it.
func (h *Hub) Bind(handler MessageHandler, presence PresenceHandler) {
	h.handler = handler
	h.presence = presence
}

// Serve upgrades the request to a websocket bound to the verified identity
// and runs its pumps. Blocks until the read pump exits.
//
// Precondition: Bind has been called.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, identity string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &Client{
		id:       uuid.NewString(),
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		hub:      h,
		logger:   h.logger,
	}
	h.register(c)

	go c.writePump()
	c.readPump()
}

// register adds the connection and, when it is the identity's first live
// connection, treats it as a reconnect candidate and restores room grouping.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.perIdent[c.identity]++
	first := h.perIdent[c.identity] == 1
	h.mu.Unlock()

	h.metrics.ActiveConnections.Inc()
	h.logger.Info("client connected",
		zap.String("conn_id", c.id),
		zap.String("identity", c.identity),
	)

	if first {
		if roomID, ok := h.presence.HandleReconnect(context.Background(), c.identity); ok {
			h.JoinGroup(roomID.String(), c)
		}
	}
}

// unregister removes the connection from the registry and every group, and
// fires the disconnect hook once the identity has no live connections left.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	for roomID, group := range h.groups {
		delete(group, c.id)
		if len(group) == 0 {
			delete(h.groups, roomID)
		}
	}
	h.perIdent[c.identity]--
	last := h.perIdent[c.identity] == 0
	if last {
		delete(h.perIdent, c.identity)
	}
	h.mu.Unlock()

	// The send channel is left open so a concurrent broadcast can never hit
	// a closed channel; the write pump exits when the connection closes.
	h.metrics.ActiveConnections.Dec()
	h.logger.Info("client disconnected",
		zap.String("conn_id", c.id),
		zap.String("identity", c.identity),
	)

	if last {
		h.presence.HandleDisconnect(context.Background(), c.identity)
	}
}

// handleMessage forwards an inbound frame to the bound handler.
func (h *Hub) handleMessage(c *Client, raw []byte) {
	h.handler.Handle(context.Background(), c, raw)
}

// JoinGroup adds the connection to the room's broadcast group.
func (h *Hub) JoinGroup(roomID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group, ok := h.groups[roomID]
	if !ok {
		group = make(map[string]*Client)
		h.groups[roomID] = group
	}
	group[c.id] = c
}

// LeaveGroup removes the connection from the room's broadcast group.
func (h *Hub) LeaveGroup(roomID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group, ok := h.groups[roomID]
	if !ok {
		return
	}
	delete(group, c.id)
	if len(group) == 0 {
		delete(h.groups, roomID)
	}
}

// ToConn delivers the event to a single connection.
func (h *Hub) ToConn(connID string, evt events.Event) {
	msg, ok := h.encode(evt)
	if !ok {
		return
	}
	h.mu.RLock()
	c, exists := h.clients[connID]
	h.mu.RUnlock()
	if exists {
		c.enqueue(msg)
	}
}

// ToRoom delivers the event to every connection in the room's group.
func (h *Hub) ToRoom(roomID string, evt events.Event) {
	h.ToRoomExcept(roomID, "", evt)
}

// ToRoomExcept delivers to the room's group, skipping one connection.
func (h *Hub) ToRoomExcept(roomID, exceptConnID string, evt events.Event) {
	msg, ok := h.encode(evt)
	if !ok {
		return
	}
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.groups[roomID]))
	for id, c := range h.groups[roomID] {
		if id != exceptConnID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(msg)
	}
}

// ToAll delivers the event to every connected client.
func (h *Hub) ToAll(evt events.Event) {
	msg, ok := h.encode(evt)
	if !ok {
		return
	}
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(msg)
	}
}

func (h *Hub) encode(evt events.Event) ([]byte, bool) {
	msg, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("failed to encode event",
			zap.String("type", evt.Type),
			zap.Error(err),
		)
		return nil, false
	}
	return msg, true
}
