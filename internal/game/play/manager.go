// Package play coordinates game sessions inside a room: move submission,
// completion, the rematch handshake, and the single-player mode against a
// computer opponent.
package play

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpssl/gameserver/internal/game/events"
	"github.com/rpssl/gameserver/internal/game/moves"
	"github.com/rpssl/gameserver/internal/game/store"
	"github.com/rpssl/gameserver/internal/observability"
)

// RandomSource supplies the computer opponent's move for single-player mode.
// A failure is surfaced to the caller as-is; the manager never retries it.
type RandomSource interface {
	// RandomNumber returns a value in [1, max].
	RandomNumber(ctx context.Context, max int) (int, error)
}

// Result is the outcome of a single-player round from the player's
// perspective.
type Result struct {
	Outcome  string       `json:"results"`
	Player   moves.Choice `json:"player"`
	Computer moves.Choice `json:"computer"`
}

// Manager drives game sessions against the store and broadcasts state
// transitions through the publisher. State mutations always commit before the
// corresponding broadcast is issued.
type Manager struct {
	store   store.Store
	pub     events.Publisher
	random  RandomSource
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewManager creates a Manager.
//
// Precondition: all collaborators are non-nil.
func NewManager(s store.Store, pub events.Publisher, random RandomSource, metrics *observability.Metrics, logger *zap.Logger) *Manager {
	return &Manager{
		store:   s,
		pub:     pub,
		random:  random,
		metrics: metrics,
		logger:  logger,
	}
}

// CreateGame creates an in-progress game for the room's current pair. The
// caller decides which event to broadcast; room-full joins announce
// GameCreated while the rematch path announces NewGameStarted.
func (m *Manager) CreateGame(ctx context.Context, roomID uuid.UUID) (*store.Game, error) {
	game, err := m.store.CreateGame(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to create game for room %s: %w", roomID, err)
	}
	m.logger.Info("game created",
		zap.String("game_id", game.ID.String()),
		zap.String("room_id", roomID.String()),
		zap.String("player1", game.Player1ID),
		zap.String("player2", game.Player2ID),
	)
	return game, nil
}

// MakeMove submits identity's move for the game and broadcasts the updated
// snapshot to the room group whether or not the submission completed the
// game, so both players always see the latest state.
//
// Postcondition: on success the room group receives exactly one
// GameStateUpdated carrying the post-submission snapshot.
func (m *Manager) MakeMove(ctx context.Context, gameID uuid.UUID, identity string, moveID int) (*store.Game, error) {
	move, err := moves.FromID(moveID)
	if err != nil {
		return nil, err
	}
	game, err := m.store.SubmitMove(ctx, gameID, identity, move)
	if err != nil {
		return nil, fmt.Errorf("failed to submit move for game %s: %w", gameID, err)
	}
	m.metrics.MoveSubmissions.Inc()
	if game.Status == store.StatusCompleted {
		m.metrics.GamesCompleted.Inc()
		m.logger.Info("game completed",
			zap.String("game_id", game.ID.String()),
			zap.String("winner", game.WinnerID),
		)
	}
	m.pub.ToRoom(game.RoomID.String(), events.Event{
		Type: events.TypeGameStateUpdated,
		Data: events.SnapshotGame(game),
	})
	return game, nil
}

// RequestNewGame signals the other room occupant that identity wants a
// rematch. Intent is advisory per-connection signaling, never stored; the
// transport layer tallies both sides before calling StartNewGame.
func (m *Manager) RequestNewGame(ctx context.Context, roomID uuid.UUID, identity, connID string) error {
	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.Has(identity) {
		return store.ErrPlayerNotInRoom
	}
	m.pub.ToRoomExcept(roomID.String(), connID, events.Event{
		Type: events.TypePlayerWantsNewGame,
		Data: identity,
	})
	return nil
}

// StartNewGame creates a fresh game for the room's pair and broadcasts it.
// The previous game record is superseded, not mutated.
func (m *Manager) StartNewGame(ctx context.Context, roomID uuid.UUID) (*store.Game, error) {
	game, err := m.CreateGame(ctx, roomID)
	if err != nil {
		return nil, err
	}
	m.pub.ToRoom(roomID.String(), events.Event{
		Type: events.TypeNewGameStarted,
		Data: events.SnapshotGame(game),
	})
	return game, nil
}

// Play runs one single-player round: the player's choice against a computer
// choice drawn from the random source.
func (m *Manager) Play(ctx context.Context, playerChoiceID int) (*Result, error) {
	playerMove, err := moves.FromID(playerChoiceID)
	if err != nil {
		return nil, err
	}
	computerMove, err := m.randomMove(ctx)
	if err != nil {
		return nil, err
	}
	outcome := moves.Resolve(playerMove, computerMove)
	return &Result{
		Outcome:  outcome.String(),
		Player:   moves.Choice{ID: int(playerMove), Name: playerMove.String()},
		Computer: moves.Choice{ID: int(computerMove), Name: computerMove.String()},
	}, nil
}

// RandomChoice returns a computer-picked choice.
func (m *Manager) RandomChoice(ctx context.Context) (moves.Choice, error) {
	move, err := m.randomMove(ctx)
	if err != nil {
		return moves.Choice{}, err
	}
	return moves.Choice{ID: int(move), Name: move.String()}, nil
}

func (m *Manager) randomMove(ctx context.Context) (moves.Move, error) {
	n, err := m.random.RandomNumber(ctx, int(moves.MaxMove))
	if err != nil {
		m.metrics.RandomFailures.Inc()
		return 0, fmt.Errorf("failed to draw computer move: %w", err)
	}
	move, err := moves.FromID(n)
	if err != nil {
		return 0, fmt.Errorf("random source returned out-of-range value %d: %w", n, err)
	}
	return move, nil
}
