package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/slganesh1/lume-telehealth/internal/domain"
	"github.com/slganesh1/lume-telehealth/internal/protocol"
)

// participantState is the in-memory truth for one connected participant's
// media flags. The persisted participant row is a write-through mirror.
// conn is the sender the participant joined with; leave uses it for an
// identity-checked unregister.
type participantState struct {
	userID       uuid.UUID
	role         domain.Role
	conn         Sender
	audioEnabled bool
	videoEnabled bool
	joinedAt     time.Time
}

// ActiveCall is the live state for one room while at least one participant
// is connected. All field access beyond the immutable identifiers happens
// under mu. A call marked defunct has been emptied and is about to be
// dropped from the table; operations observing the flag must re-resolve
// the room instead of mutating it.
type ActiveCall struct {
	CallID    uuid.UUID
	RoomID    string
	StartedAt time.Time

	mu           sync.Mutex
	defunct      bool
	participants map[uuid.UUID]*participantState
}

// snapshotLocked returns the roster ordered by join time. Caller holds mu.
func (c *ActiveCall) snapshotLocked() []protocol.ParticipantInfo {
	out := make([]protocol.ParticipantInfo, 0, len(c.participants))
	for _, p := range c.participants {
		out = append(out, protocol.ParticipantInfo{
			UserID:       p.userID,
			Role:         string(p.role),
			AudioEnabled: p.audioEnabled,
			VideoEnabled: p.videoEnabled,
			JoinedAt:     p.joinedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].UserID.String() < out[j].UserID.String()
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

// Table owns the map from room key to ActiveCall. An entry exists iff the
// room has at least one connected participant; the manager removes the
// entry immediately after the last participant leaves.
type Table struct {
	mu    sync.RWMutex
	rooms map[string]*ActiveCall
}

// NewTable creates an empty room state table
func NewTable() *Table {
	return &Table{rooms: make(map[string]*ActiveCall)}
}

// GetOrCreate returns the room's live call, creating it with an empty
// participant set on first join
func (t *Table) GetOrCreate(roomID string, callID uuid.UUID) *ActiveCall {
	t.mu.Lock()
	defer t.mu.Unlock()

	if call, ok := t.rooms[roomID]; ok {
		return call
	}
	call := &ActiveCall{
		CallID:       callID,
		RoomID:       roomID,
		StartedAt:    time.Now(),
		participants: make(map[uuid.UUID]*participantState),
	}
	t.rooms[roomID] = call
	return call
}

// Get returns the live call for roomID if present
func (t *Table) Get(roomID string) (*ActiveCall, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	call, ok := t.rooms[roomID]
	return call, ok
}

// Remove deletes roomID only while it still maps to call. A remove racing
// with a re-create of the same room key is a no-op.
func (t *Table) Remove(roomID string, call *ActiveCall) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.rooms[roomID]; ok && cur == call {
		delete(t.rooms, roomID)
	}
}

// RoomsFor returns the ids of every room whose participant set contains
// userID. A user is expected to occupy at most one room, but disconnect
// cleanup scans them all rather than assuming it.
func (t *Table) RoomsFor(userID uuid.UUID) []string {
	t.mu.RLock()
	calls := make([]*ActiveCall, 0, len(t.rooms))
	for _, call := range t.rooms {
		calls = append(calls, call)
	}
	t.mu.RUnlock()

	var out []string
	for _, call := range calls {
		call.mu.Lock()
		if _, ok := call.participants[userID]; ok && !call.defunct {
			out = append(out, call.RoomID)
		}
		call.mu.Unlock()
	}
	return out
}

// Len reports the number of rooms with live state
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rooms)
}
