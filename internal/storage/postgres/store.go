package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpssl/gameserver/internal/game/moves"
	"github.com/rpssl/gameserver/internal/game/store"
)

// Store is the PostgreSQL-backed session store. Slot and move mutations run
// in row-locked transactions so conflicting writers resolve to exactly one
// definitive outcome each; the partial unique index on in-progress games
// backs the duplicate-active-game check against concurrent inserts.
type Store struct {
	db *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// NewStore creates a Store backed by the given pool.
//
// Precondition: db must be a valid, open connection pool with migrations applied.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const roomColumns = "id, player1, player2, archived, created_at"
const gameColumns = "id, room_id, player1_id, player2_id, player1_move, player2_move, status, winner_id, created_at, completed_at"

// CreateRoom allocates a new room with owner in slot 1.
//
// Precondition: owner must be non-empty.
func (s *Store) CreateRoom(ctx context.Context, owner string) (*store.Room, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO rooms (id, player1)
		VALUES ($1, $2)
		RETURNING `+roomColumns,
		uuid.New(), owner,
	)
	room, err := scanRoom(row)
	if err != nil {
		return nil, fmt.Errorf("inserting room: %w", err)
	}
	return room, nil
}

// GetRoom returns the room, archived or not.
func (s *Store) GetRoom(ctx context.Context, roomID uuid.UUID) (*store.Room, error) {
	row := s.db.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, roomID)
	room, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrRoomNotFound
		}
		return nil, fmt.Errorf("selecting room: %w", err)
	}
	return room, nil
}

// ListOpenRooms returns all non-archived rooms ordered by creation time.
func (s *Store) ListOpenRooms(ctx context.Context) ([]*store.Room, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+roomColumns+` FROM rooms WHERE NOT archived ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	defer rows.Close()

	out := make([]*store.Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning room row: %w", err)
		}
		out = append(out, room)
	}
	return out, rows.Err()
}

// RoomForPlayer returns the non-archived room occupied by identity.
func (s *Store) RoomForPlayer(ctx context.Context, identity string) (*store.Room, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+roomColumns+` FROM rooms
		WHERE NOT archived AND (player1 = $1 OR player2 = $1)
		ORDER BY created_at DESC LIMIT 1`,
		identity,
	)
	room, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrRoomNotFound
		}
		return nil, fmt.Errorf("selecting room for player: %w", err)
	}
	return room, nil
}

// TryOccupySlot atomically inspects the room and fills the first empty slot.
// The row lock serializes concurrent joiners so the last slot goes to exactly
// one of them.
func (s *Store) TryOccupySlot(ctx context.Context, roomID uuid.UUID, identity string) (store.JoinOutcome, *store.Room, error) {
	var outcome store.JoinOutcome
	var room *store.Room
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		r, err := lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if r.Archived {
			return store.ErrRoomNotFound
		}
		switch {
		case r.Has(identity):
			outcome = store.AlreadyPresent
		case r.IsFull():
			outcome = store.Full
		case r.Player1 == "":
			r.Player1 = identity
			outcome = store.Joined
		default:
			r.Player2 = identity
			outcome = store.Joined
		}
		if outcome == store.Joined {
			if err := updateSlots(ctx, tx, r); err != nil {
				return err
			}
		}
		room = r
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return outcome, room, nil
}

// VacateSlot removes identity from whichever slot holds it, promoting slot 2
// to slot 1 when the owner leaves.
func (s *Store) VacateSlot(ctx context.Context, roomID uuid.UUID, identity string) (*store.Room, bool, error) {
	var room *store.Room
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		r, err := lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		switch {
		case r.Player1 == identity:
			r.Player1 = r.Player2
			r.Player2 = ""
		case r.Player2 == identity:
			r.Player2 = ""
		default:
			return store.ErrPlayerNotInRoom
		}
		if err := updateSlots(ctx, tx, r); err != nil {
			return err
		}
		room = r
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return room, room.IsEmpty(), nil
}

// ArchiveIfEmpty marks the room archived only if both slots are vacant.
func (s *Store) ArchiveIfEmpty(ctx context.Context, roomID uuid.UUID) (bool, error) {
	var archived bool
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		r, err := lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if r.IsEmpty() && !r.Archived {
			if _, err := tx.Exec(ctx, `UPDATE rooms SET archived = TRUE WHERE id = $1`, roomID); err != nil {
				return fmt.Errorf("archiving room: %w", err)
			}
			r.Archived = true
		}
		archived = r.Archived
		return nil
	})
	if err != nil {
		return false, err
	}
	return archived, nil
}

// CreateGame creates an in-progress game for the room's current pair. The
// room row lock plus the partial unique index on (room_id) for in-progress
// games guarantee at most one active game per room.
func (s *Store) CreateGame(ctx context.Context, roomID uuid.UUID) (*store.Game, error) {
	var game *store.Game
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		r, err := lockRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if r.Archived {
			return store.ErrRoomNotFound
		}
		if !r.IsFull() {
			return store.ErrRoomNotFull
		}
		row := tx.QueryRow(ctx, `
			INSERT INTO games (id, room_id, player1_id, player2_id)
			VALUES ($1, $2, $3, $4)
			RETURNING `+gameColumns,
			uuid.New(), roomID, r.Player1, r.Player2,
		)
		g, err := scanGame(row)
		if err != nil {
			if isDuplicateKey(err) {
				return store.ErrDuplicateActiveGame
			}
			return fmt.Errorf("inserting game: %w", err)
		}
		game = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return game, nil
}

// GetGame returns the game.
func (s *Store) GetGame(ctx context.Context, gameID uuid.UUID) (*store.Game, error) {
	row := s.db.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, gameID)
	game, err := scanGame(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrGameNotFound
		}
		return nil, fmt.Errorf("selecting game: %w", err)
	}
	return game, nil
}

// SubmitMove sets playerID's move slot and, when both slots become set,
// completes the game inside the same transaction.
func (s *Store) SubmitMove(ctx context.Context, gameID uuid.UUID, playerID string, m moves.Move) (*store.Game, error) {
	var game *store.Game
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1 FOR UPDATE`, gameID)
		g, err := scanGame(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return store.ErrGameNotFound
			}
			return fmt.Errorf("selecting game: %w", err)
		}
		if g.Status != store.StatusInProgress {
			return store.ErrGameNotInProgress
		}
		switch playerID {
		case g.Player1ID:
			if g.Player1Move != 0 {
				return store.ErrMoveAlreadySubmitted
			}
			g.Player1Move = m
		case g.Player2ID:
			if g.Player2Move != 0 {
				return store.ErrMoveAlreadySubmitted
			}
			g.Player2Move = m
		default:
			return store.ErrPlayerNotInGame
		}

		if g.Player1Move != 0 && g.Player2Move != 0 {
			g.Status = store.StatusCompleted
			g.CompletedAt = time.Now().UTC()
			switch moves.Resolve(g.Player1Move, g.Player2Move) {
			case moves.Win:
				g.WinnerID = g.Player1ID
			case moves.Lose:
				g.WinnerID = g.Player2ID
			}
		}

		var completedAt *time.Time
		if !g.CompletedAt.IsZero() {
			completedAt = &g.CompletedAt
		}
		if _, err := tx.Exec(ctx, `
			UPDATE games
			SET player1_move = $2, player2_move = $3, status = $4, winner_id = $5, completed_at = $6
			WHERE id = $1`,
			g.ID, int(g.Player1Move), int(g.Player2Move), string(g.Status), g.WinnerID, completedAt,
		); err != nil {
			return fmt.Errorf("updating game: %w", err)
		}
		game = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return game, nil
}

// LatestGame returns the most recently created game between the room's
// current occupants.
func (s *Store) LatestGame(ctx context.Context, roomID uuid.UUID) (*store.Game, error) {
	return s.findGameForRoom(ctx, roomID, false)
}

// ActiveGame returns the in-progress game between the room's current occupants.
func (s *Store) ActiveGame(ctx context.Context, roomID uuid.UUID) (*store.Game, error) {
	return s.findGameForRoom(ctx, roomID, true)
}

func (s *Store) findGameForRoom(ctx context.Context, roomID uuid.UUID, activeOnly bool) (*store.Game, error) {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsFull() {
		return nil, store.ErrGameNotFound
	}

	query := `
		SELECT ` + gameColumns + ` FROM games
		WHERE room_id = $1
		  AND ((player1_id = $2 AND player2_id = $3) OR (player1_id = $3 AND player2_id = $2))`
	if activeOnly {
		query += ` AND status = 'in_progress'`
	}
	query += ` ORDER BY created_at DESC LIMIT 1`

	row := s.db.QueryRow(ctx, query, roomID, room.Player1, room.Player2)
	game, err := scanGame(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrGameNotFound
		}
		return nil, fmt.Errorf("selecting game for room: %w", err)
	}
	return game, nil
}

// AbandonActiveGame marks the room's in-progress game abandoned and clears
// both moves.
func (s *Store) AbandonActiveGame(ctx context.Context, roomID uuid.UUID) (*store.Game, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE games
		SET status = 'abandoned', player1_move = 0, player2_move = 0
		WHERE room_id = $1 AND status = 'in_progress'
		RETURNING `+gameColumns,
		roomID,
	)
	game, err := scanGame(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrGameNotFound
		}
		return nil, fmt.Errorf("abandoning game: %w", err)
	}
	return game, nil
}

// withTx runs fn inside a transaction, committing on nil and rolling back on
// error.
func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// lockRoom selects the room row FOR UPDATE.
func lockRoom(ctx context.Context, tx pgx.Tx, roomID uuid.UUID) (*store.Room, error) {
	row := tx.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1 FOR UPDATE`, roomID)
	room, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrRoomNotFound
		}
		return nil, fmt.Errorf("locking room: %w", err)
	}
	return room, nil
}

func updateSlots(ctx context.Context, tx pgx.Tx, r *store.Room) error {
	if _, err := tx.Exec(ctx, `
		UPDATE rooms SET player1 = $2, player2 = $3 WHERE id = $1`,
		r.ID, r.Player1, r.Player2,
	); err != nil {
		return fmt.Errorf("updating room slots: %w", err)
	}
	return nil
}

func scanRoom(row pgx.Row) (*store.Room, error) {
	var r store.Room
	if err := row.Scan(&r.ID, &r.Player1, &r.Player2, &r.Archived, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func scanGame(row pgx.Row) (*store.Game, error) {
	var g store.Game
	var p1Move, p2Move int
	var status string
	var completedAt *time.Time
	if err := row.Scan(
		&g.ID, &g.RoomID, &g.Player1ID, &g.Player2ID,
		&p1Move, &p2Move, &status, &g.WinnerID,
		&g.CreatedAt, &completedAt,
	); err != nil {
		return nil, err
	}
	g.Player1Move = moves.Move(p1Move)
	g.Player2Move = moves.Move(p2Move)
	g.Status = store.GameStatus(status)
	if completedAt != nil {
		g.CompletedAt = *completedAt
	}
	return &g, nil
}

// isDuplicateKey reports whether err is a PostgreSQL unique violation.
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
