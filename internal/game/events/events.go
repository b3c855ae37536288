// Package events defines the broadcast events the coordination engine emits
// and the publish capabilities it requires from the transport layer.
package events

import (
	"time"

	"github.com/rpssl/gameserver/internal/game/store"
)

// Event type names on the wire.
const (
	TypeRoomCreated                   = "RoomCreated"
	TypeRoomUpdated                   = "RoomUpdated"
	TypeRoomArchived                  = "RoomArchived"
	TypeReceiveRooms                  = "ReceiveRooms"
	TypePlayerJoined                  = "PlayerJoined"
	TypePlayerLeft                    = "PlayerLeft"
	TypePlayerTemporarilyDisconnected = "PlayerTemporarilyDisconnected"
	TypePlayerReconnected             = "PlayerReconnected"
	TypeJoinedRoom                    = "JoinedRoom"
	TypeJoinRoomFailed                = "JoinRoomFailed"
	TypeGameCreated                   = "GameCreated"
	TypeGameStateUpdated              = "GameStateUpdated"
	TypeNewGameStarted                = "NewGameStarted"
	TypePlayerWantsNewGame            = "PlayerWantsNewGame"
)

// Event is a typed payload delivered to one connection, a room group, or all
// connections.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Publisher is the transport capability the coordinators publish through.
// Delivery is fire-and-forget: implementations must never block coordinator
// control flow or report delivery failure back into it.
type Publisher interface {
	// ToConn delivers the event to a single connection.
	ToConn(connID string, evt Event)
	// ToRoom delivers the event to every connection in the room's group.
	ToRoom(roomID string, evt Event)
	// ToRoomExcept delivers to the room's group, skipping one connection.
	ToRoomExcept(roomID, exceptConnID string, evt Event)
	// ToAll delivers the event to every connected client.
	ToAll(evt Event)
}

// RoomSummary is the occupancy view of a room broadcast to the lobby.
type RoomSummary struct {
	ID        string    `json:"id"`
	Occupancy int       `json:"occupancy"`
	CreatedAt time.Time `json:"createdAt"`
}

// SummarizeRoom builds the lobby summary for a room record.
func SummarizeRoom(r *store.Room) RoomSummary {
	return RoomSummary{
		ID:        r.ID.String(),
		Occupancy: r.Occupancy(),
		CreatedAt: r.CreatedAt,
	}
}

// GameSnapshot is the full game-state view broadcast to a room's occupants.
// Move ids and winner are omitted until set.
type GameSnapshot struct {
	ID          string     `json:"id"`
	RoomID      string     `json:"roomId"`
	Player1ID   string     `json:"player1Id"`
	Player2ID   string     `json:"player2Id"`
	Player1Move *int       `json:"player1Move,omitempty"`
	Player2Move *int       `json:"player2Move,omitempty"`
	Status      string     `json:"status"`
	WinnerID    *string    `json:"winnerId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// SnapshotGame builds the broadcast view of a game record.
func SnapshotGame(g *store.Game) GameSnapshot {
	snap := GameSnapshot{
		ID:        g.ID.String(),
		RoomID:    g.RoomID.String(),
		Player1ID: g.Player1ID,
		Player2ID: g.Player2ID,
		Status:    string(g.Status),
		CreatedAt: g.CreatedAt,
	}
	if g.Player1Move != 0 {
		id := int(g.Player1Move)
		snap.Player1Move = &id
	}
	if g.Player2Move != 0 {
		id := int(g.Player2Move)
		snap.Player2Move = &id
	}
	if g.WinnerID != "" {
		winner := g.WinnerID
		snap.WinnerID = &winner
	}
	if !g.CompletedAt.IsZero() {
		completedAt := g.CompletedAt
		snap.CompletedAt = &completedAt
	}
	return snap
}
