package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/rpssl/gameserver/internal/game/moves"
	"github.com/rpssl/gameserver/internal/game/store"
)

func TestMemoryStore_CreateRoom(t *testing.T) {
	s := store.NewMemoryStore()
	room, err := s.CreateRoom(context.Background(), "alice")
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, room.ID)
	assert.Equal(t, "alice", room.Player1)
	assert.Empty(t, room.Player2)
	assert.False(t, room.Archived)
	assert.Equal(t, 1, room.Occupancy())
}

func TestMemoryStore_TryOccupySlot(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	room, err := s.CreateRoom(ctx, "alice")
	require.NoError(t, err)

	outcome, snap, err := s.TryOccupySlot(ctx, room.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, store.Joined, outcome)
	assert.Equal(t, "bob", snap.Player2)

	// Reconnection is idempotent.
	outcome, snap, err = s.TryOccupySlot(ctx, room.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, store.AlreadyPresent, outcome)
	assert.Equal(t, 2, snap.Occupancy())

	// Third identity is rejected.
	outcome, _, err = s.TryOccupySlot(ctx, room.ID, "carol")
	require.NoError(t, err)
	assert.Equal(t, store.Full, outcome)

	_, _, err = s.TryOccupySlot(ctx, uuid.New(), "dave")
	assert.ErrorIs(t, err, store.ErrRoomNotFound)
}

func TestMemoryStore_TryOccupySlot_ArchivedRoomNeverRejoined(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	room, err := s.CreateRoom(ctx, "alice")
	require.NoError(t, err)

	_, empty, err := s.VacateSlot(ctx, room.ID, "alice")
	require.NoError(t, err)
	require.True(t, empty)

	archived, err := s.ArchiveIfEmpty(ctx, room.ID)
	require.NoError(t, err)
	require.True(t, archived)

	_, _, err = s.TryOccupySlot(ctx, room.ID, "bob")
	assert.ErrorIs(t, err, store.ErrRoomNotFound)
}

func TestMemoryStore_VacateSlot_PromotesRemainingPlayer(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	room, err := s.CreateRoom(ctx, "alice")
	require.NoError(t, err)
	_, _, err = s.TryOccupySlot(ctx, room.ID, "bob")
	require.NoError(t, err)

	snap, empty, err := s.VacateSlot(ctx, room.ID, "alice")
	require.NoError(t, err)
	assert.False(t, empty)
	assert.Equal(t, "bob", snap.Player1)
	assert.Empty(t, snap.Player2)

	_, _, err = s.VacateSlot(ctx, room.ID, "alice")
	assert.ErrorIs(t, err, store.ErrPlayerNotInRoom)
}

func TestMemoryStore_ArchiveIfEmpty_NoOpWhenOccupied(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	room, err := s.CreateRoom(ctx, "alice")
	require.NoError(t, err)

	archived, err := s.ArchiveIfEmpty(ctx, room.ID)
	require.NoError(t, err)
	assert.False(t, archived)

	got, err := s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.False(t, got.Archived)
}

func TestMemoryStore_ListOpenRooms_ExcludesArchived(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	r1, err := s.CreateRoom(ctx, "alice")
	require.NoError(t, err)
	r2, err := s.CreateRoom(ctx, "bob")
	require.NoError(t, err)

	_, _, err = s.VacateSlot(ctx, r1.ID, "alice")
	require.NoError(t, err)
	_, err = s.ArchiveIfEmpty(ctx, r1.ID)
	require.NoError(t, err)

	open, err := s.ListOpenRooms(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, r2.ID, open[0].ID)
}

func TestMemoryStore_RoomForPlayer(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	room, err := s.CreateRoom(ctx, "alice")
	require.NoError(t, err)

	got, err := s.RoomForPlayer(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)

	_, err = s.RoomForPlayer(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrRoomNotFound)
}

func fullRoom(t *testing.T, s store.Store) *store.Room {
	t.Helper()
	ctx := context.Background()
	room, err := s.CreateRoom(ctx, "alice")
	require.NoError(t, err)
	_, _, err = s.TryOccupySlot(ctx, room.ID, "bob")
	require.NoError(t, err)
	room, err = s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	return room
}

func TestMemoryStore_CreateGame(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	room := fullRoom(t, s)

	game, err := s.CreateGame(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, game.RoomID)
	assert.Equal(t, "alice", game.Player1ID)
	assert.Equal(t, "bob", game.Player2ID)
	assert.Equal(t, store.StatusInProgress, game.Status)

	_, err = s.CreateGame(ctx, room.ID)
	assert.ErrorIs(t, err, store.ErrDuplicateActiveGame)
}

func TestMemoryStore_CreateGame_RequiresTwoPlayers(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	room, err := s.CreateRoom(ctx, "alice")
	require.NoError(t, err)

	_, err = s.CreateGame(ctx, room.ID)
	assert.ErrorIs(t, err, store.ErrRoomNotFull)
}

func TestMemoryStore_SubmitMove_CompletesGame(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	room := fullRoom(t, s)
	game, err := s.CreateGame(ctx, room.ID)
	require.NoError(t, err)

	snap, err := s.SubmitMove(ctx, game.ID, "alice", moves.Rock)
	require.NoError(t, err)
	assert.Equal(t, store.StatusInProgress, snap.Status)
	assert.Equal(t, moves.Rock, snap.Player1Move)
	assert.Zero(t, snap.Player2Move)

	snap, err = s.SubmitMove(ctx, game.ID, "bob", moves.Scissors)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, snap.Status)
	assert.Equal(t, "alice", snap.WinnerID)
	assert.False(t, snap.CompletedAt.IsZero())

	// A third submission neither errors silently nor alters the record.
	_, err = s.SubmitMove(ctx, game.ID, "alice", moves.Paper)
	assert.ErrorIs(t, err, store.ErrGameNotInProgress)

	got, err := s.GetGame(ctx, game.ID)
	require.NoError(t, err)
	assert.Equal(t, moves.Rock, got.Player1Move)
	assert.Equal(t, moves.Scissors, got.Player2Move)
}

func TestMemoryStore_SubmitMove_TieHasNoWinner(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	room := fullRoom(t, s)
	game, err := s.CreateGame(ctx, room.ID)
	require.NoError(t, err)

	_, err = s.SubmitMove(ctx, game.ID, "alice", moves.Spock)
	require.NoError(t, err)
	snap, err := s.SubmitMove(ctx, game.ID, "bob", moves.Spock)
	require.NoError(t, err)

	assert.Equal(t, store.StatusCompleted, snap.Status)
	assert.Empty(t, snap.WinnerID)
}

func TestMemoryStore_SubmitMove_Validation(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	room := fullRoom(t, s)
	game, err := s.CreateGame(ctx, room.ID)
	require.NoError(t, err)

	_, err = s.SubmitMove(ctx, game.ID, "mallory", moves.Rock)
	assert.ErrorIs(t, err, store.ErrPlayerNotInGame)

	_, err = s.SubmitMove(ctx, game.ID, "alice", moves.Rock)
	require.NoError(t, err)
	_, err = s.SubmitMove(ctx, game.ID, "alice", moves.Paper)
	assert.ErrorIs(t, err, store.ErrMoveAlreadySubmitted)

	_, err = s.SubmitMove(ctx, uuid.New(), "alice", moves.Rock)
	assert.ErrorIs(t, err, store.ErrGameNotFound)
}

func TestMemoryStore_LatestAndActiveGame(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	room := fullRoom(t, s)

	_, err := s.ActiveGame(ctx, room.ID)
	assert.ErrorIs(t, err, store.ErrGameNotFound)

	g1, err := s.CreateGame(ctx, room.ID)
	require.NoError(t, err)

	active, err := s.ActiveGame(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, g1.ID, active.ID)

	_, err = s.SubmitMove(ctx, g1.ID, "alice", moves.Rock)
	require.NoError(t, err)
	_, err = s.SubmitMove(ctx, g1.ID, "bob", moves.Paper)
	require.NoError(t, err)

	// Completed games are no longer active but remain the latest record.
	_, err = s.ActiveGame(ctx, room.ID)
	assert.ErrorIs(t, err, store.ErrGameNotFound)

	g2, err := s.CreateGame(ctx, room.ID)
	require.NoError(t, err)

	latest, err := s.LatestGame(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, g2.ID, latest.ID)
}

func TestMemoryStore_AbandonActiveGame(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	room := fullRoom(t, s)
	game, err := s.CreateGame(ctx, room.ID)
	require.NoError(t, err)

	_, err = s.SubmitMove(ctx, game.ID, "alice", moves.Lizard)
	require.NoError(t, err)

	snap, err := s.AbandonActiveGame(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusAbandoned, snap.Status)
	assert.Zero(t, snap.Player1Move)
	assert.Zero(t, snap.Player2Move)

	_, err = s.AbandonActiveGame(ctx, room.ID)
	assert.ErrorIs(t, err, store.ErrGameNotFound)

	// The abandoned game no longer blocks a new one.
	_, err = s.CreateGame(ctx, room.ID)
	require.NoError(t, err)
}

func TestMemoryStore_ConcurrentJoin_LastSlot(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	room, err := s.CreateRoom(ctx, "owner")
	require.NoError(t, err)

	const n = 8
	outcomes := make([]store.JoinOutcome, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			out, _, err := s.TryOccupySlot(ctx, room.ID, fmt.Sprintf("p%d", i))
			require.NoError(t, err)
			outcomes[i] = out
		}(i)
	}
	wg.Wait()

	joined, full := 0, 0
	for _, out := range outcomes {
		switch out {
		case store.Joined:
			joined++
		case store.Full:
			full++
		}
	}
	assert.Equal(t, 1, joined, "exactly one contender wins the last slot")
	assert.Equal(t, n-1, full)
}

func TestMemoryStore_ConcurrentJoin_FreshRoom(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	room, err := s.CreateRoom(ctx, "owner")
	require.NoError(t, err)
	_, empty, err := s.VacateSlot(ctx, room.ID, "owner")
	require.NoError(t, err)
	require.True(t, empty)

	// Three contenders race for two open slots.
	outcomes := make([]store.JoinOutcome, 3)
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		go func(i int) {
			defer wg.Done()
			out, _, err := s.TryOccupySlot(ctx, room.ID, fmt.Sprintf("p%d", i))
			require.NoError(t, err)
			outcomes[i] = out
		}(i)
	}
	wg.Wait()

	joined, full := 0, 0
	for _, out := range outcomes {
		switch out {
		case store.Joined:
			joined++
		case store.Full:
			full++
		}
	}
	assert.Equal(t, 2, joined)
	assert.Equal(t, 1, full)
}

func TestMemoryStore_ConcurrentMoves_SingleCompletion(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	room := fullRoom(t, s)
	game, err := s.CreateGame(ctx, room.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	var completions int32
	results := make([]*store.Game, 2)
	go func() {
		defer wg.Done()
		snap, err := s.SubmitMove(ctx, game.ID, "alice", moves.Rock)
		require.NoError(t, err)
		results[0] = snap
	}()
	go func() {
		defer wg.Done()
		snap, err := s.SubmitMove(ctx, game.ID, "bob", moves.Scissors)
		require.NoError(t, err)
		results[1] = snap
	}()
	wg.Wait()

	for _, snap := range results {
		if snap.Status == store.StatusCompleted {
			completions++
		}
	}
	assert.EqualValues(t, 1, completions, "exactly one submission observes the completion transition")

	final, err := s.GetGame(ctx, game.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, final.Status)
	assert.Equal(t, moves.Rock, final.Player1Move)
	assert.Equal(t, moves.Scissors, final.Player2Move)
	assert.Equal(t, "alice", final.WinnerID)
}

func TestMemoryStore_ConcurrentCreateGame_SingleWinner(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	room := fullRoom(t, s)

	const n = 6
	var created, dup int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := s.CreateGame(ctx, room.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
			} else if err == store.ErrDuplicateActiveGame {
				dup++
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, created)
	assert.EqualValues(t, n-1, dup)
}

func TestPropertyStoreOccupancyBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		s := store.NewMemoryStore()

		room, err := s.CreateRoom(ctx, "p0")
		if err != nil {
			t.Fatal(err)
		}

		numOps := rapid.IntRange(1, 40).Draw(t, "num_ops")
		for i := 0; i < numOps; i++ {
			identity := fmt.Sprintf("p%d", rapid.IntRange(0, 5).Draw(t, "identity"))
			if rapid.Bool().Draw(t, "join") {
				_, _, _ = s.TryOccupySlot(ctx, room.ID, identity)
			} else {
				_, _, _ = s.VacateSlot(ctx, room.ID, identity)
			}

			snap, err := s.GetRoom(ctx, room.ID)
			if err != nil {
				t.Fatal(err)
			}
			if snap.Occupancy() > 2 {
				t.Fatalf("occupancy %d exceeds two", snap.Occupancy())
			}
			if snap.Player1 != "" && snap.Player1 == snap.Player2 {
				t.Fatalf("identity %q seated twice", snap.Player1)
			}
			if snap.Player1 == "" && snap.Player2 != "" {
				t.Fatalf("slot 2 occupied while slot 1 vacant")
			}
		}
	})
}
