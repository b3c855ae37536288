package ws

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpssl/gameserver/internal/game/events"
	"github.com/rpssl/gameserver/internal/game/lobby"
	"github.com/rpssl/gameserver/internal/game/play"
)

// Handler decodes inbound command envelopes and dispatches them to the room
// coordinator and the game session manager. Command failures are reported to
// the originating connection only and never broadcast.
type Handler struct {
	lobby  *lobby.Coordinator
	games  *play.Manager
	hub    *Hub
	logger *zap.Logger
}

// NewHandler creates a Handler.
func NewHandler(l *lobby.Coordinator, g *play.Manager, hub *Hub, logger *zap.Logger) *Handler {
	return &Handler{
		lobby:  l,
		games:  g,
		hub:    hub,
		logger: logger,
	}
}

// Handle processes one inbound frame from c.
func (h *Handler) Handle(ctx context.Context, c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.fail(c, "", "malformed message")
		return
	}

	switch env.Type {
	case CmdCreateRoom:
		h.createRoom(ctx, c)
	case CmdJoinRoom:
		h.joinRoom(ctx, c, env.Data)
	case CmdLeaveRoom:
		h.leaveRoom(ctx, c, env.Data)
	case CmdMakeMove:
		h.makeMove(ctx, c, env.Data)
	case CmdRequestNewGame:
		h.requestNewGame(ctx, c, env.Data)
	case CmdStartNewGame:
		h.startNewGame(ctx, c, env.Data)
	case CmdGetRooms:
		h.getRooms(ctx, c)
	default:
		h.fail(c, env.Type, "unknown command")
	}
}

func (h *Handler) createRoom(ctx context.Context, c *Client) {
	room, err := h.lobby.CreateRoom(ctx, c.identity)
	if err != nil {
		h.fail(c, CmdCreateRoom, err.Error())
		return
	}
	// The creator holds slot 1, so it belongs in the broadcast group from
	// the start.
	h.hub.JoinGroup(room.ID.String(), c)
}

func (h *Handler) joinRoom(ctx context.Context, c *Client, data json.RawMessage) {
	roomID, ok := h.roomID(c, CmdJoinRoom, data)
	if !ok {
		return
	}
	// Group membership is established before the join so a game created for
	// the filled room reaches both occupants. It is rolled back on failure.
	h.hub.JoinGroup(roomID.String(), c)
	if err := h.lobby.JoinRoom(ctx, roomID, c.identity, c.id); err != nil {
		h.hub.LeaveGroup(roomID.String(), c)
	}
}

func (h *Handler) leaveRoom(ctx context.Context, c *Client, data json.RawMessage) {
	roomID, ok := h.roomID(c, CmdLeaveRoom, data)
	if !ok {
		return
	}
	if err := h.lobby.LeaveRoom(ctx, roomID, c.identity); err != nil {
		h.fail(c, CmdLeaveRoom, err.Error())
		return
	}
	h.hub.LeaveGroup(roomID.String(), c)
}

func (h *Handler) makeMove(ctx context.Context, c *Client, data json.RawMessage) {
	var payload MakeMovePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.fail(c, CmdMakeMove, "malformed payload")
		return
	}
	gameID, err := uuid.Parse(payload.GameID)
	if err != nil {
		h.fail(c, CmdMakeMove, "invalid game id")
		return
	}
	if _, err := h.games.MakeMove(ctx, gameID, c.identity, payload.MoveID); err != nil {
		h.fail(c, CmdMakeMove, err.Error())
	}
}

func (h *Handler) requestNewGame(ctx context.Context, c *Client, data json.RawMessage) {
	roomID, ok := h.roomID(c, CmdRequestNewGame, data)
	if !ok {
		return
	}
	if err := h.games.RequestNewGame(ctx, roomID, c.identity, c.id); err != nil {
		h.fail(c, CmdRequestNewGame, err.Error())
	}
}

func (h *Handler) startNewGame(ctx context.Context, c *Client, data json.RawMessage) {
	roomID, ok := h.roomID(c, CmdStartNewGame, data)
	if !ok {
		return
	}
	if _, err := h.games.StartNewGame(ctx, roomID); err != nil {
		h.fail(c, CmdStartNewGame, err.Error())
	}
}

func (h *Handler) getRooms(ctx context.Context, c *Client) {
	rooms, err := h.lobby.ListRooms(ctx)
	if err != nil {
		h.fail(c, CmdGetRooms, err.Error())
		return
	}
	h.hub.ToConn(c.id, events.Event{Type: events.TypeReceiveRooms, Data: rooms})
}

// roomID decodes a room-scoped payload, reporting failures to the caller.
func (h *Handler) roomID(c *Client, command string, data json.RawMessage) (uuid.UUID, bool) {
	var payload RoomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.fail(c, command, "malformed payload")
		return uuid.Nil, false
	}
	roomID, err := uuid.Parse(payload.RoomID)
	if err != nil {
		h.fail(c, command, "invalid room id")
		return uuid.Nil, false
	}
	return roomID, true
}

func (h *Handler) fail(c *Client, command, reason string) {
	h.logger.Debug("command failed",
		zap.String("command", command),
		zap.String("identity", c.identity),
		zap.String("reason", reason),
	)
	payload, err := json.Marshal(ErrorPayload{Command: command, Reason: reason})
	if err != nil {
		return
	}
	msg, err := json.Marshal(Envelope{Type: TypeError, Data: payload})
	if err != nil {
		return
	}
	c.enqueue(msg)
}
