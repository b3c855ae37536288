// Package lobby coordinates room creation, joining, and leaving, and bridges
// transport presence events into room membership via the grace-period tracker.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpssl/gameserver/internal/game/events"
	"github.com/rpssl/gameserver/internal/game/play"
	"github.com/rpssl/gameserver/internal/game/presence"
	"github.com/rpssl/gameserver/internal/game/store"
	"github.com/rpssl/gameserver/internal/observability"
)

// Coordinator is the room-side state machine. Every operation mutates the
// store first and broadcasts second; broadcast delivery never rolls a
// mutation back.
type Coordinator struct {
	store   store.Store
	games   *play.Manager
	pub     events.Publisher
	tracker *presence.Tracker
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewCoordinator creates a Coordinator owning a presence tracker with the
// given grace period. Grace expiry promotes the disconnect to a LeaveRoom.
//
// Precondition: all collaborators are non-nil and grace > 0.
func NewCoordinator(s store.Store, games *play.Manager, pub events.Publisher, metrics *observability.Metrics, logger *zap.Logger, grace time.Duration) *Coordinator {
	c := &Coordinator{
		store:   s,
		games:   games,
		pub:     pub,
		metrics: metrics,
		logger:  logger,
	}
	c.tracker = presence.NewTracker(grace, c.onGraceExpired, logger)
	return c
}

// CreateRoom allocates a room owned by identity and announces it to all
// connections.
func (c *Coordinator) CreateRoom(ctx context.Context, identity string) (*store.Room, error) {
	room, err := c.store.CreateRoom(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	c.metrics.RoomsCreated.Inc()
	c.metrics.OpenRooms.Inc()
	c.logger.Info("room created",
		zap.String("room_id", room.ID.String()),
		zap.String("owner", identity),
	)
	c.pub.ToAll(events.Event{Type: events.TypeRoomCreated, Data: events.SummarizeRoom(room)})
	return room, nil
}

// JoinRoom seats identity in the room if a slot is free. Failures are
// reported to the calling connection only; a fresh join is announced to the
// room group, and filling the second slot creates a game for the pair.
//
// Postcondition: Of two identities racing for the last slot, exactly one
// observes a successful join.
func (c *Coordinator) JoinRoom(ctx context.Context, roomID uuid.UUID, identity, connID string) error {
	outcome, room, err := c.store.TryOccupySlot(ctx, roomID, identity)
	if err != nil {
		c.pub.ToConn(connID, events.Event{Type: events.TypeJoinRoomFailed, Data: "room not found"})
		return err
	}

	switch outcome {
	case store.Full:
		c.pub.ToConn(connID, events.Event{Type: events.TypeJoinRoomFailed, Data: "room is full"})
		return store.ErrRoomFull

	case store.AlreadyPresent:
		// Reconnection: replay the latest game state so the caller catches
		// up on moves made while away, or confirm the seat if no game yet.
		game, err := c.store.LatestGame(ctx, roomID)
		if err != nil {
			if !errors.Is(err, store.ErrGameNotFound) {
				return err
			}
			c.pub.ToConn(connID, events.Event{Type: events.TypeJoinedRoom, Data: nil})
			return nil
		}
		c.pub.ToConn(connID, events.Event{Type: events.TypeGameStateUpdated, Data: events.SnapshotGame(game)})
		return nil

	case store.Joined:
		c.logger.Info("player joined room",
			zap.String("room_id", roomID.String()),
			zap.String("identity", identity),
		)
		c.pub.ToRoom(roomID.String(), events.Event{Type: events.TypePlayerJoined, Data: identity})
		c.pub.ToAll(events.Event{Type: events.TypeRoomUpdated, Data: events.SummarizeRoom(room)})

		if room.IsFull() {
			if _, err := c.store.ActiveGame(ctx, roomID); errors.Is(err, store.ErrGameNotFound) {
				game, err := c.games.CreateGame(ctx, roomID)
				if err != nil {
					// Lost the creation race to the other joiner; the
					// group already received that game.
					if errors.Is(err, store.ErrDuplicateActiveGame) {
						return nil
					}
					return err
				}
				c.pub.ToRoom(roomID.String(), events.Event{Type: events.TypeGameCreated, Data: events.SnapshotGame(game)})
			}
			return nil
		}
		c.pub.ToConn(connID, events.Event{Type: events.TypeJoinedRoom, Data: nil})
		return nil

	default:
		return fmt.Errorf("unexpected join outcome %d", outcome)
	}
}

// LeaveRoom removes identity from the room, abandons any in-progress game so
// no stale move leaks into a new pairing, and archives the room once empty.
func (c *Coordinator) LeaveRoom(ctx context.Context, roomID uuid.UUID, identity string) error {
	_, _, err := c.store.VacateSlot(ctx, roomID, identity)
	if err != nil {
		return fmt.Errorf("failed to vacate slot in room %s: %w", roomID, err)
	}
	if _, err := c.store.AbandonActiveGame(ctx, roomID); err != nil && !errors.Is(err, store.ErrGameNotFound) {
		return err
	}

	c.logger.Info("player left room",
		zap.String("room_id", roomID.String()),
		zap.String("identity", identity),
	)
	c.pub.ToRoom(roomID.String(), events.Event{Type: events.TypePlayerLeft, Data: identity})

	archived, err := c.store.ArchiveIfEmpty(ctx, roomID)
	if err != nil {
		return err
	}
	if archived {
		c.metrics.RoomsArchived.Inc()
		c.metrics.OpenRooms.Dec()
		c.logger.Info("room archived", zap.String("room_id", roomID.String()))
		c.pub.ToAll(events.Event{Type: events.TypeRoomArchived, Data: roomID.String()})
		return nil
	}
	room, err := c.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	c.pub.ToAll(events.Event{Type: events.TypeRoomUpdated, Data: events.SummarizeRoom(room)})
	return nil
}

// ListRooms returns summaries of all open rooms.
func (c *Coordinator) ListRooms(ctx context.Context) ([]events.RoomSummary, error) {
	rooms, err := c.store.ListOpenRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	out := make([]events.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, events.SummarizeRoom(r))
	}
	return out, nil
}

// HandleDisconnect records a transport-level disconnect. An identity inside a
// room enters the grace window instead of leaving immediately; identities
// outside any room are ignored.
func (c *Coordinator) HandleDisconnect(ctx context.Context, identity string) {
	room, err := c.store.RoomForPlayer(ctx, identity)
	if err != nil {
		return
	}
	c.tracker.Disconnected(identity, room.ID)
	c.pub.ToRoom(room.ID.String(), events.Event{Type: events.TypePlayerTemporarilyDisconnected, Data: identity})
}

// HandleReconnect cancels a pending grace window for identity, if any, and
// tells the room the player is back. Room occupancy and any in-progress game
// are untouched. Returns the room the identity was seated in so the transport
// can restore its group membership.
func (c *Coordinator) HandleReconnect(_ context.Context, identity string) (uuid.UUID, bool) {
	roomID, ok := c.tracker.Reconnected(identity)
	if !ok {
		return uuid.Nil, false
	}
	c.pub.ToRoom(roomID.String(), events.Event{Type: events.TypePlayerReconnected, Data: identity})
	return roomID, true
}

// onGraceExpired promotes an expired grace window to a real leave. Runs on
// the tracker's timer goroutine.
func (c *Coordinator) onGraceExpired(identity string, roomID uuid.UUID) {
	if err := c.LeaveRoom(context.Background(), roomID, identity); err != nil {
		c.logger.Warn("failed to promote expired disconnect to leave",
			zap.String("identity", identity),
			zap.String("room_id", roomID.String()),
			zap.Error(err),
		)
	}
}
