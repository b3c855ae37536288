package lobby

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rpssl/gameserver/internal/game/events"
	"github.com/rpssl/gameserver/internal/game/moves"
	"github.com/rpssl/gameserver/internal/game/play"
	"github.com/rpssl/gameserver/internal/game/store"
	"github.com/rpssl/gameserver/internal/observability"
)

type recordedEvent struct {
	target string
	event  events.Event
}

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) ToConn(connID string, evt events.Event) {
	p.record(recordedEvent{target: "conn:" + connID, event: evt})
}

func (p *recordingPublisher) ToRoom(roomID string, evt events.Event) {
	p.record(recordedEvent{target: "room:" + roomID, event: evt})
}

func (p *recordingPublisher) ToRoomExcept(roomID, _ string, evt events.Event) {
	p.record(recordedEvent{target: "room:" + roomID, event: evt})
}

func (p *recordingPublisher) ToAll(evt events.Event) {
	p.record(recordedEvent{target: "all", event: evt})
}

func (p *recordingPublisher) record(e recordedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) ofType(eventType string) []recordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []recordedEvent
	for _, e := range p.events {
		if e.event.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type stubRandom struct{}

func (stubRandom) RandomNumber(context.Context, int) (int, error) {
	return int(moves.Rock), nil
}

func newTestCoordinator(t *testing.T, grace time.Duration) (*Coordinator, store.Store, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	s := store.NewMemoryStore()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	games := play.NewManager(s, pub, stubRandom{}, metrics, zap.NewNop())
	return NewCoordinator(s, games, pub, metrics, zap.NewNop(), grace), s, pub
}

func TestCreateRoomAnnouncesToAll(t *testing.T) {
	c, _, pub := newTestCoordinator(t, time.Minute)

	room, err := c.CreateRoom(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", room.Player1)

	created := pub.ofType(events.TypeRoomCreated)
	require.Len(t, created, 1)
	assert.Equal(t, "all", created[0].target)
	summary, ok := created[0].event.Data.(events.RoomSummary)
	require.True(t, ok)
	assert.Equal(t, room.ID.String(), summary.ID)
	assert.Equal(t, 1, summary.Occupancy)
}

func TestJoinSecondPlayerCreatesGame(t *testing.T) {
	c, _, pub := newTestCoordinator(t, time.Minute)

	room, err := c.CreateRoom(context.Background(), "alice")
	require.NoError(t, err)
	require.NoError(t, c.JoinRoom(context.Background(), room.ID, "bob", "conn-bob"))

	joined := pub.ofType(events.TypePlayerJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, "bob", joined[0].event.Data)

	created := pub.ofType(events.TypeGameCreated)
	require.Len(t, created, 1)
	assert.Equal(t, "room:"+room.ID.String(), created[0].target)
	snap, ok := created[0].event.Data.(events.GameSnapshot)
	require.True(t, ok)
	assert.Equal(t, "alice", snap.Player1ID)
	assert.Equal(t, "bob", snap.Player2ID)
	assert.Equal(t, string(store.StatusInProgress), snap.Status)
}

func TestJoinFullRoomFailsToCallerOnly(t *testing.T) {
	c, _, pub := newTestCoordinator(t, time.Minute)

	room, err := c.CreateRoom(context.Background(), "alice")
	require.NoError(t, err)
	require.NoError(t, c.JoinRoom(context.Background(), room.ID, "bob", "conn-bob"))

	err = c.JoinRoom(context.Background(), room.ID, "carol", "conn-carol")
	assert.ErrorIs(t, err, store.ErrRoomFull)

	failures := pub.ofType(events.TypeJoinRoomFailed)
	require.Len(t, failures, 1)
	assert.Equal(t, "conn:conn-carol", failures[0].target)
}

func TestJoinUnknownRoomFailsToCaller(t *testing.T) {
	c, _, pub := newTestCoordinator(t, time.Minute)

	err := c.JoinRoom(context.Background(), uuid.New(), "alice", "conn-alice")
	assert.ErrorIs(t, err, store.ErrRoomNotFound)

	failures := pub.ofType(events.TypeJoinRoomFailed)
	require.Len(t, failures, 1)
	assert.Equal(t, "conn:conn-alice", failures[0].target)
}

func TestRejoinReplaysLatestGameState(t *testing.T) {
	c, _, pub := newTestCoordinator(t, time.Minute)

	room, err := c.CreateRoom(context.Background(), "alice")
	require.NoError(t, err)
	require.NoError(t, c.JoinRoom(context.Background(), room.ID, "bob", "conn-bob"))

	require.NoError(t, c.JoinRoom(context.Background(), room.ID, "alice", "conn-alice-2"))

	replays := pub.ofType(events.TypeGameStateUpdated)
	require.Len(t, replays, 1)
	assert.Equal(t, "conn:conn-alice-2", replays[0].target)
}

func TestRejoinWithoutGameConfirmsSeat(t *testing.T) {
	c, _, pub := newTestCoordinator(t, time.Minute)

	room, err := c.CreateRoom(context.Background(), "alice")
	require.NoError(t, err)

	require.NoError(t, c.JoinRoom(context.Background(), room.ID, "alice", "conn-alice-2"))

	waits := pub.ofType(events.TypeJoinedRoom)
	require.Len(t, waits, 1)
	assert.Equal(t, "conn:conn-alice-2", waits[0].target)
	assert.Nil(t, waits[0].event.Data)
}

func TestJoinEmptyRoomWaitsForOpponent(t *testing.T) {
	c, s, pub := newTestCoordinator(t, time.Minute)

	room, err := c.CreateRoom(context.Background(), "alice")
	require.NoError(t, err)
	_, _, err = s.VacateSlot(context.Background(), room.ID, "alice")
	require.NoError(t, err)

	require.NoError(t, c.JoinRoom(context.Background(), room.ID, "carol", "conn-carol"))

	waits := pub.ofType(events.TypeJoinedRoom)
	require.Len(t, waits, 1)
	assert.Equal(t, "conn:conn-carol", waits[0].target)
	assert.Empty(t, pub.ofType(events.TypeGameCreated))
}

func TestLeaveRoomPromotesRemainingOccupantAndAbandonsGame(t *testing.T) {
	c, s, pub := newTestCoordinator(t, time.Minute)

	room, err := c.CreateRoom(context.Background(), "alice")
	require.NoError(t, err)
	require.NoError(t, c.JoinRoom(context.Background(), room.ID, "bob", "conn-bob"))

	game, err := s.ActiveGame(context.Background(), room.ID)
	require.NoError(t, err)
	_, err = s.SubmitMove(context.Background(), game.ID, "alice", moves.Rock)
	require.NoError(t, err)

	require.NoError(t, c.LeaveRoom(context.Background(), room.ID, "alice"))

	left := pub.ofType(events.TypePlayerLeft)
	require.Len(t, left, 1)
	assert.Equal(t, "alice", left[0].event.Data)

	after, err := s.GetRoom(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", after.Player1)
	assert.Empty(t, after.Player2)
	assert.False(t, after.Archived)

	abandoned, err := s.GetGame(context.Background(), game.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusAbandoned, abandoned.Status)
	assert.Zero(t, abandoned.Player1Move)

	updated := pub.ofType(events.TypeRoomUpdated)
	require.NotEmpty(t, updated)
	last := updated[len(updated)-1]
	assert.Equal(t, "all", last.target)
	summary, ok := last.event.Data.(events.RoomSummary)
	require.True(t, ok)
	assert.Equal(t, 1, summary.Occupancy)
}

func TestLeaveLastOccupantArchivesRoom(t *testing.T) {
	c, s, pub := newTestCoordinator(t, time.Minute)

	room, err := c.CreateRoom(context.Background(), "alice")
	require.NoError(t, err)

	require.NoError(t, c.LeaveRoom(context.Background(), room.ID, "alice"))

	archived := pub.ofType(events.TypeRoomArchived)
	require.Len(t, archived, 1)
	assert.Equal(t, "all", archived[0].target)
	assert.Equal(t, room.ID.String(), archived[0].event.Data)

	after, err := s.GetRoom(context.Background(), room.ID)
	require.NoError(t, err)
	assert.True(t, after.Archived)
}

func TestConcurrentJoinsYieldOneSeatAndOneGame(t *testing.T) {
	c, _, pub := newTestCoordinator(t, time.Minute)

	room, err := c.CreateRoom(context.Background(), "alice")
	require.NoError(t, err)

	identities := []string{"bob", "carol", "dave"}
	var wg sync.WaitGroup
	errs := make([]error, len(identities))
	for i, identity := range identities {
		wg.Add(1)
		go func(i int, identity string) {
			defer wg.Done()
			errs[i] = c.JoinRoom(context.Background(), room.ID, identity, "conn-"+identity)
		}(i, identity)
	}
	wg.Wait()

	var joined, full int
	for _, err := range errs {
		switch {
		case err == nil:
			joined++
		default:
			require.ErrorIs(t, err, store.ErrRoomFull)
			full++
		}
	}
	assert.Equal(t, 1, joined)
	assert.Equal(t, 2, full)
	assert.Len(t, pub.ofType(events.TypeGameCreated), 1)
}

func TestListRoomsExcludesArchived(t *testing.T) {
	c, _, _ := newTestCoordinator(t, time.Minute)

	first, err := c.CreateRoom(context.Background(), "alice")
	require.NoError(t, err)
	second, err := c.CreateRoom(context.Background(), "bob")
	require.NoError(t, err)
	require.NoError(t, c.LeaveRoom(context.Background(), second.ID, "bob"))

	rooms, err := c.ListRooms(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, first.ID.String(), rooms[0].ID)
}

func TestReconnectWithinGraceKeepsRoomIntact(t *testing.T) {
	c, s, pub := newTestCoordinator(t, time.Minute)

	room, err := c.CreateRoom(context.Background(), "alice")
	require.NoError(t, err)
	require.NoError(t, c.JoinRoom(context.Background(), room.ID, "bob", "conn-bob"))

	c.HandleDisconnect(context.Background(), "alice")
	require.Len(t, pub.ofType(events.TypePlayerTemporarilyDisconnected), 1)

	c.HandleReconnect(context.Background(), "alice")
	require.Len(t, pub.ofType(events.TypePlayerReconnected), 1)

	assert.Empty(t, pub.ofType(events.TypePlayerLeft))
	after, err := s.GetRoom(context.Background(), room.ID)
	require.NoError(t, err)
	assert.True(t, after.IsFull())
	_, err = s.ActiveGame(context.Background(), room.ID)
	assert.NoError(t, err)
}

func TestGraceExpiryPromotesToLeave(t *testing.T) {
	c, s, pub := newTestCoordinator(t, 20*time.Millisecond)

	room, err := c.CreateRoom(context.Background(), "alice")
	require.NoError(t, err)

	c.HandleDisconnect(context.Background(), "alice")

	require.Eventually(t, func() bool {
		return len(pub.ofType(events.TypePlayerLeft)) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Len(t, pub.ofType(events.TypeRoomArchived), 1)
	after, err := s.GetRoom(context.Background(), room.ID)
	require.NoError(t, err)
	assert.True(t, after.Archived)
}

func TestDisconnectOutsideRoomIgnored(t *testing.T) {
	c, _, pub := newTestCoordinator(t, time.Minute)

	c.HandleDisconnect(context.Background(), "ghost")
	assert.Empty(t, pub.ofType(events.TypePlayerTemporarilyDisconnected))

	c.HandleReconnect(context.Background(), "ghost")
	assert.Empty(t, pub.ofType(events.TypePlayerReconnected))
}
