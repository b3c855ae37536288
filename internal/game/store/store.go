// Package store owns the authoritative Room and Game records and defines the
// atomic operations the coordinators use to mutate them.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rpssl/gameserver/internal/game/moves"
)

// ErrRoomNotFound is returned when a room lookup yields no results or the
// room has been archived.
var ErrRoomNotFound = errors.New("room not found")

// ErrPlayerNotInRoom is returned when vacating a slot the identity does not occupy.
var ErrPlayerNotInRoom = errors.New("player not in room")

// ErrRoomFull is reported by the coordinators when both slots of a room are
// taken by other identities. The store signals the condition through the
// Full outcome instead.
var ErrRoomFull = errors.New("room is full")

// ErrGameNotFound is returned when a game lookup yields no results.
var ErrGameNotFound = errors.New("game not found")

// ErrRoomNotFull is returned when creating a game for a room that does not
// have two occupants.
var ErrRoomNotFull = errors.New("room does not have two players")

// ErrDuplicateActiveGame is returned when an in-progress game already exists
// for the same room and player pair.
var ErrDuplicateActiveGame = errors.New("an active game already exists for this room")

// ErrGameNotInProgress is returned when submitting a move to a completed or
// abandoned game.
var ErrGameNotInProgress = errors.New("game is not in progress")

// ErrMoveAlreadySubmitted is returned when a player's move slot is already set.
var ErrMoveAlreadySubmitted = errors.New("move already submitted")

// ErrPlayerNotInGame is returned when the submitting player is neither
// player of the game.
var ErrPlayerNotInGame = errors.New("player is not part of this game")

// GameStatus is the lifecycle state of a Game record.
type GameStatus string

const (
	// StatusInProgress marks a game still accepting moves.
	StatusInProgress GameStatus = "in_progress"
	// StatusCompleted marks a game whose both moves are set and outcome decided.
	StatusCompleted GameStatus = "completed"
	// StatusAbandoned marks a game discarded because an occupant left the
	// room before completion. Abandoned games never count as active.
	StatusAbandoned GameStatus = "abandoned"
)

// Room is a two-seat pairing container. An empty player string means the
// slot is vacant.
//
// Invariant: a non-archived room holds at most two distinct identities;
// an archived room is never rejoined.
type Room struct {
	ID        uuid.UUID
	Player1   string
	Player2   string
	CreatedAt time.Time
	Archived  bool
}

// Occupancy returns the number of filled slots (0..2).
func (r *Room) Occupancy() int {
	n := 0
	if r.Player1 != "" {
		n++
	}
	if r.Player2 != "" {
		n++
	}
	return n
}

// IsEmpty reports whether both slots are vacant.
func (r *Room) IsEmpty() bool {
	return r.Player1 == "" && r.Player2 == ""
}

// IsFull reports whether both slots are occupied.
func (r *Room) IsFull() bool {
	return r.Player1 != "" && r.Player2 != ""
}

// Has reports whether identity occupies either slot.
func (r *Room) Has(identity string) bool {
	return identity != "" && (r.Player1 == identity || r.Player2 == identity)
}

// Game is one round of move submission between the two occupants of a room.
// A zero Move value means the slot is unset. WinnerID is empty for ties and
// unfinished games; CompletedAt is the zero time until completion.
//
// Invariant: a move field, once set, is never changed while the game is in
// progress or completed (abandoning clears both moves); the status transition
// to StatusCompleted happens exactly once, in the same atomic step that sets
// the second move.
type Game struct {
	ID          uuid.UUID
	RoomID      uuid.UUID
	Player1ID   string
	Player2ID   string
	Player1Move moves.Move
	Player2Move moves.Move
	Status      GameStatus
	WinnerID    string
	CreatedAt   time.Time
	CompletedAt time.Time
}

// HasPair reports whether the game is between exactly the given two
// identities, in either slot order.
func (g *Game) HasPair(a, b string) bool {
	return (g.Player1ID == a && g.Player2ID == b) || (g.Player1ID == b && g.Player2ID == a)
}

// JoinOutcome is the result of TryOccupySlot.
type JoinOutcome int

const (
	// Joined means the identity filled a previously empty slot.
	Joined JoinOutcome = iota
	// AlreadyPresent means the identity already occupied a slot (reconnection).
	AlreadyPresent
	// Full means both slots were taken by other identities.
	Full
)

// Store provides atomic create/update/query operations over Room and Game
// records. Every operation is atomic with respect to concurrent callers on
// the same room or game id: no caller ever observes a half-applied mutation,
// and conflicting writers resolve to exactly one definitive outcome each.
//
// All returned records are snapshots; mutating them has no effect on the
// stored state.
type Store interface {
	// CreateRoom allocates a new room with owner in slot 1.
	CreateRoom(ctx context.Context, owner string) (*Room, error)

	// GetRoom returns the room, archived or not, or ErrRoomNotFound.
	GetRoom(ctx context.Context, roomID uuid.UUID) (*Room, error)

	// ListOpenRooms returns all non-archived rooms ordered by creation time.
	ListOpenRooms(ctx context.Context) ([]*Room, error)

	// RoomForPlayer returns the non-archived room occupied by identity,
	// or ErrRoomNotFound.
	RoomForPlayer(ctx context.Context, identity string) (*Room, error)

	// TryOccupySlot atomically inspects the room and fills the first empty
	// slot with identity. Archived or unknown rooms yield ErrRoomNotFound.
	// The returned room snapshot reflects the state after the operation.
	TryOccupySlot(ctx context.Context, roomID uuid.UUID, identity string) (JoinOutcome, *Room, error)

	// VacateSlot removes identity from whichever slot holds it. If slot 1 is
	// vacated while slot 2 is occupied, slot 2 is promoted to slot 1.
	// Returns the post-vacate snapshot and whether the room is now empty.
	VacateSlot(ctx context.Context, roomID uuid.UUID, identity string) (*Room, bool, error)

	// ArchiveIfEmpty marks the room archived only if both slots are vacant.
	// Returns whether the room is archived after the call. A room refilled
	// concurrently is left untouched.
	ArchiveIfEmpty(ctx context.Context, roomID uuid.UUID) (bool, error)

	// CreateGame creates an in-progress game for the room's current pair.
	// Fails with ErrRoomNotFull unless both slots are occupied, and with
	// ErrDuplicateActiveGame if an in-progress game already exists for this
	// room; both checks happen inside the same atomic step as the insert.
	CreateGame(ctx context.Context, roomID uuid.UUID) (*Game, error)

	// GetGame returns the game or ErrGameNotFound.
	GetGame(ctx context.Context, gameID uuid.UUID) (*Game, error)

	// SubmitMove sets playerID's move slot. If both slots become set, the
	// outcome is computed and the game transitions to StatusCompleted with
	// WinnerID and CompletedAt assigned, all within the same atomic step.
	SubmitMove(ctx context.Context, gameID uuid.UUID, playerID string, m moves.Move) (*Game, error)

	// LatestGame returns the most recently created game between the room's
	// current occupants, or ErrGameNotFound if the room is not full or no
	// such game exists.
	LatestGame(ctx context.Context, roomID uuid.UUID) (*Game, error)

	// ActiveGame returns the in-progress game between the room's current
	// occupants, or ErrGameNotFound.
	ActiveGame(ctx context.Context, roomID uuid.UUID) (*Game, error)

	// AbandonActiveGame marks the room's in-progress game abandoned and
	// clears its moves, so no stale move leaks into a new pairing. Returns
	// the abandoned snapshot, or ErrGameNotFound if none was in progress.
	AbandonActiveGame(ctx context.Context, roomID uuid.UUID) (*Game, error)
}
