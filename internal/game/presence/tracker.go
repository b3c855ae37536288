// Package presence tracks transiently disconnected players and promotes them
// to a real leave once a grace period elapses without a reconnect.
package presence

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultGracePeriod is the window a disconnected player has to reconnect
// before being treated as having left their room.
const DefaultGracePeriod = 30 * time.Second

// ExpireFunc is invoked when a grace period elapses with the entry still
// present. It runs on the timer goroutine.
type ExpireFunc func(identity string, roomID uuid.UUID)

// entry records one identity inside the disconnected-but-not-yet-left window.
type entry struct {
	roomID uuid.UUID
	since  time.Time
	timer  *time.Timer
}

// Tracker maps disconnected identities to their room and grace timer.
// All methods are safe for concurrent use.
//
// Invariant: for a given disconnect, at most one of Reconnected and the timer
// callback wins the remove-if-present race, so the expire function fires at
// most once per entry.
type Tracker struct {
	mu       sync.Mutex
	entries  map[string]*entry
	grace    time.Duration
	onExpire ExpireFunc
	logger   *zap.Logger
}

// NewTracker creates a Tracker firing onExpire after grace.
//
// Precondition: grace > 0; onExpire and logger must be non-nil.
func NewTracker(grace time.Duration, onExpire ExpireFunc, logger *zap.Logger) *Tracker {
	return &Tracker{
		entries:  make(map[string]*entry),
		grace:    grace,
		onExpire: onExpire,
		logger:   logger,
	}
}

// Disconnected records identity as transiently disconnected from roomID and
// starts the grace timer. A repeated disconnect for the same identity
// replaces the previous entry and cancels its timer.
//
// Postcondition: Unless Reconnected removes the entry first, onExpire fires
// exactly once for this entry after the grace period.
func (t *Tracker) Disconnected(identity string, roomID uuid.UUID) {
	t.mu.Lock()
	if old, ok := t.entries[identity]; ok {
		old.timer.Stop()
	}
	e := &entry{roomID: roomID, since: time.Now()}
	e.timer = time.AfterFunc(t.grace, func() {
		t.expire(identity, roomID)
	})
	t.entries[identity] = e
	t.mu.Unlock()

	t.logger.Info("player entered disconnect grace period",
		zap.String("identity", identity),
		zap.String("room_id", roomID.String()),
		zap.Duration("grace", t.grace),
	)
}

// Reconnected atomically removes identity's entry, cancelling the pending
// timer. Returns the room the identity was associated with and whether an
// entry existed; a late timer for a removed entry is a no-op.
func (t *Tracker) Reconnected(identity string) (uuid.UUID, bool) {
	t.mu.Lock()
	e, ok := t.entries[identity]
	if ok {
		e.timer.Stop()
		delete(t.entries, identity)
	}
	t.mu.Unlock()

	if !ok {
		return uuid.Nil, false
	}
	t.logger.Info("player reconnected within grace period",
		zap.String("identity", identity),
		zap.String("room_id", e.roomID.String()),
		zap.Duration("offline", time.Since(e.since)),
	)
	return e.roomID, true
}

// InGrace reports whether identity currently has a pending grace entry.
func (t *Tracker) InGrace(identity string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[identity]
	return ok
}

// Len returns the number of pending grace entries.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// expire removes the entry if still present and unchanged, then invokes the
// expire function. The remove-if-present check is what guarantees that a
// reconnect racing the timer results in exactly one of the two paths acting.
func (t *Tracker) expire(identity string, roomID uuid.UUID) {
	t.mu.Lock()
	e, ok := t.entries[identity]
	if !ok || e.roomID != roomID {
		t.mu.Unlock()
		return
	}
	delete(t.entries, identity)
	t.mu.Unlock()

	t.logger.Info("disconnect grace period expired, promoting to leave",
		zap.String("identity", identity),
		zap.String("room_id", roomID.String()),
	)
	t.onExpire(identity, roomID)
}
