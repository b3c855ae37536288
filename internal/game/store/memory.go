package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rpssl/gameserver/internal/game/moves"
)

// roomEntry pairs a room record with the mutex that serializes all mutations
// of that record.
type roomEntry struct {
	mu   sync.Mutex
	room Room
}

// gameEntry pairs a game record with the mutex that serializes all mutations
// of that record.
type gameEntry struct {
	mu   sync.Mutex
	game Game
}

// MemoryStore is an in-memory Store with per-record locking.
//
// Lock discipline: the registry mutex guards only the maps and is never held
// while acquiring an entry mutex; a room entry mutex may be held while
// acquiring a game entry mutex, never the reverse. This keeps every
// read-modify-write confined to a single locked section per key without a
// global lock across rooms.
type MemoryStore struct {
	mu        sync.RWMutex
	rooms     map[uuid.UUID]*roomEntry
	games     map[uuid.UUID]*gameEntry
	roomGames map[uuid.UUID][]uuid.UUID // creation-ordered game ids per room
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:     make(map[uuid.UUID]*roomEntry),
		games:     make(map[uuid.UUID]*gameEntry),
		roomGames: make(map[uuid.UUID][]uuid.UUID),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) roomEntry(roomID uuid.UUID) (*roomEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.rooms[roomID]
	return e, ok
}

func (s *MemoryStore) gameEntry(gameID uuid.UUID) (*gameEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.games[gameID]
	return e, ok
}

// CreateRoom allocates a new room with owner in slot 1.
//
// Precondition: owner must be non-empty.
// Postcondition: Returns a snapshot of the created room.
func (s *MemoryStore) CreateRoom(_ context.Context, owner string) (*Room, error) {
	entry := &roomEntry{
		room: Room{
			ID:        uuid.New(),
			Player1:   owner,
			CreatedAt: time.Now().UTC(),
		},
	}

	s.mu.Lock()
	s.rooms[entry.room.ID] = entry
	s.mu.Unlock()

	snap := entry.room
	return &snap, nil
}

// GetRoom returns a snapshot of the room, archived or not.
func (s *MemoryStore) GetRoom(_ context.Context, roomID uuid.UUID) (*Room, error) {
	e, ok := s.roomEntry(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	e.mu.Lock()
	snap := e.room
	e.mu.Unlock()
	return &snap, nil
}

// ListOpenRooms returns all non-archived rooms ordered by creation time.
func (s *MemoryStore) ListOpenRooms(_ context.Context) ([]*Room, error) {
	s.mu.RLock()
	entries := make([]*roomEntry, 0, len(s.rooms))
	for _, e := range s.rooms {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]*Room, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.room.Archived {
			snap := e.room
			out = append(out, &snap)
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// RoomForPlayer returns the non-archived room occupied by identity.
func (s *MemoryStore) RoomForPlayer(_ context.Context, identity string) (*Room, error) {
	s.mu.RLock()
	entries := make([]*roomEntry, 0, len(s.rooms))
	for _, e := range s.rooms {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		if !e.room.Archived && e.room.Has(identity) {
			snap := e.room
			e.mu.Unlock()
			return &snap, nil
		}
		e.mu.Unlock()
	}
	return nil, ErrRoomNotFound
}

// TryOccupySlot atomically inspects the room and fills the first empty slot.
//
// Postcondition: Exactly one of two concurrent callers racing for the last
// slot observes Joined; the other observes Full (or AlreadyPresent if it was
// already seated).
func (s *MemoryStore) TryOccupySlot(_ context.Context, roomID uuid.UUID, identity string) (JoinOutcome, *Room, error) {
	e, ok := s.roomEntry(roomID)
	if !ok {
		return 0, nil, ErrRoomNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.room.Archived {
		return 0, nil, ErrRoomNotFound
	}
	if e.room.Has(identity) {
		snap := e.room
		return AlreadyPresent, &snap, nil
	}
	if e.room.IsFull() {
		snap := e.room
		return Full, &snap, nil
	}
	if e.room.Player1 == "" {
		e.room.Player1 = identity
	} else {
		e.room.Player2 = identity
	}
	snap := e.room
	return Joined, &snap, nil
}

// VacateSlot removes identity from whichever slot holds it, promoting slot 2
// to slot 1 when the owner leaves.
func (s *MemoryStore) VacateSlot(_ context.Context, roomID uuid.UUID, identity string) (*Room, bool, error) {
	e, ok := s.roomEntry(roomID)
	if !ok {
		return nil, false, ErrRoomNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.room.Player1 == identity:
		e.room.Player1 = e.room.Player2
		e.room.Player2 = ""
	case e.room.Player2 == identity:
		e.room.Player2 = ""
	default:
		return nil, false, ErrPlayerNotInRoom
	}
	snap := e.room
	return &snap, snap.IsEmpty(), nil
}

// ArchiveIfEmpty marks the room archived only if both slots are vacant.
func (s *MemoryStore) ArchiveIfEmpty(_ context.Context, roomID uuid.UUID) (bool, error) {
	e, ok := s.roomEntry(roomID)
	if !ok {
		return false, ErrRoomNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.room.IsEmpty() {
		e.room.Archived = true
	}
	return e.room.Archived, nil
}

// CreateGame creates an in-progress game for the room's current pair. The
// duplicate-active check and the insert happen under the room's lock, so two
// concurrent creators for the same room resolve to one game and one
// ErrDuplicateActiveGame.
func (s *MemoryStore) CreateGame(_ context.Context, roomID uuid.UUID) (*Game, error) {
	e, ok := s.roomEntry(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.room.Archived {
		return nil, ErrRoomNotFound
	}
	if !e.room.IsFull() {
		return nil, ErrRoomNotFull
	}
	if g := s.activeGameLocked(&e.room); g != nil {
		return nil, ErrDuplicateActiveGame
	}

	entry := &gameEntry{
		game: Game{
			ID:        uuid.New(),
			RoomID:    roomID,
			Player1ID: e.room.Player1,
			Player2ID: e.room.Player2,
			Status:    StatusInProgress,
			CreatedAt: time.Now().UTC(),
		},
	}

	s.mu.Lock()
	s.games[entry.game.ID] = entry
	s.roomGames[roomID] = append(s.roomGames[roomID], entry.game.ID)
	s.mu.Unlock()

	snap := entry.game
	return &snap, nil
}

// GetGame returns a snapshot of the game.
func (s *MemoryStore) GetGame(_ context.Context, gameID uuid.UUID) (*Game, error) {
	e, ok := s.gameEntry(gameID)
	if !ok {
		return nil, ErrGameNotFound
	}
	e.mu.Lock()
	snap := e.game
	e.mu.Unlock()
	return &snap, nil
}

// SubmitMove sets playerID's move slot and, when both slots become set,
// completes the game in the same locked section.
//
// Postcondition: Of two players moving concurrently, exactly one submission
// triggers the transition to StatusCompleted, computed from both moves.
func (s *MemoryStore) SubmitMove(_ context.Context, gameID uuid.UUID, playerID string, m moves.Move) (*Game, error) {
	e, ok := s.gameEntry(gameID)
	if !ok {
		return nil, ErrGameNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.game.Status != StatusInProgress {
		return nil, ErrGameNotInProgress
	}
	switch playerID {
	case e.game.Player1ID:
		if e.game.Player1Move != 0 {
			return nil, ErrMoveAlreadySubmitted
		}
		e.game.Player1Move = m
	case e.game.Player2ID:
		if e.game.Player2Move != 0 {
			return nil, ErrMoveAlreadySubmitted
		}
		e.game.Player2Move = m
	default:
		return nil, ErrPlayerNotInGame
	}

	if e.game.Player1Move != 0 && e.game.Player2Move != 0 {
		completeGame(&e.game)
	}

	snap := e.game
	return &snap, nil
}

// completeGame transitions g to StatusCompleted, assigning the winner from
// the move relation. Caller must hold the game's lock.
func completeGame(g *Game) {
	g.Status = StatusCompleted
	g.CompletedAt = time.Now().UTC()
	switch moves.Resolve(g.Player1Move, g.Player2Move) {
	case moves.Win:
		g.WinnerID = g.Player1ID
	case moves.Lose:
		g.WinnerID = g.Player2ID
	default:
		// tie: WinnerID stays empty
	}
}

// LatestGame returns the most recently created game between the room's
// current occupants.
func (s *MemoryStore) LatestGame(_ context.Context, roomID uuid.UUID) (*Game, error) {
	return s.findGameForRoom(roomID, false)
}

// ActiveGame returns the in-progress game between the room's current occupants.
func (s *MemoryStore) ActiveGame(_ context.Context, roomID uuid.UUID) (*Game, error) {
	return s.findGameForRoom(roomID, true)
}

func (s *MemoryStore) findGameForRoom(roomID uuid.UUID, activeOnly bool) (*Game, error) {
	e, ok := s.roomEntry(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.room.IsFull() {
		return nil, ErrGameNotFound
	}

	var found *Game
	if activeOnly {
		found = s.activeGameLocked(&e.room)
	} else {
		found = s.latestGameLocked(&e.room)
	}
	if found == nil {
		return nil, ErrGameNotFound
	}
	return found, nil
}

// activeGameLocked returns a snapshot of the in-progress game for the room's
// current pair, or nil. Caller must hold the room's lock.
func (s *MemoryStore) activeGameLocked(room *Room) *Game {
	for _, id := range s.gameIDsForRoom(room.ID) {
		ge, ok := s.gameEntry(id)
		if !ok {
			continue
		}
		ge.mu.Lock()
		if ge.game.Status == StatusInProgress && ge.game.HasPair(room.Player1, room.Player2) {
			snap := ge.game
			ge.mu.Unlock()
			return &snap
		}
		ge.mu.Unlock()
	}
	return nil
}

// latestGameLocked returns a snapshot of the most recently created game for
// the room's current pair, or nil. Caller must hold the room's lock.
func (s *MemoryStore) latestGameLocked(room *Room) *Game {
	ids := s.gameIDsForRoom(room.ID)
	for i := len(ids) - 1; i >= 0; i-- {
		ge, ok := s.gameEntry(ids[i])
		if !ok {
			continue
		}
		ge.mu.Lock()
		if ge.game.HasPair(room.Player1, room.Player2) {
			snap := ge.game
			ge.mu.Unlock()
			return &snap
		}
		ge.mu.Unlock()
	}
	return nil
}

func (s *MemoryStore) gameIDsForRoom(roomID uuid.UUID) []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uuid.UUID, len(s.roomGames[roomID]))
	copy(ids, s.roomGames[roomID])
	return ids
}

// AbandonActiveGame marks the room's in-progress game abandoned and clears
// both moves.
func (s *MemoryStore) AbandonActiveGame(_ context.Context, roomID uuid.UUID) (*Game, error) {
	e, ok := s.roomEntry(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range s.gameIDsForRoom(roomID) {
		ge, ok := s.gameEntry(id)
		if !ok {
			continue
		}
		ge.mu.Lock()
		if ge.game.Status == StatusInProgress {
			ge.game.Status = StatusAbandoned
			ge.game.Player1Move = 0
			ge.game.Player2Move = 0
			snap := ge.game
			ge.mu.Unlock()
			return &snap, nil
		}
		ge.mu.Unlock()
	}
	return nil, ErrGameNotFound
}
