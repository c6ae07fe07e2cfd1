package session

import (
	"sync"

	"github.com/google/uuid"
)

// Sender is the outbound half of one signaling connection. TrySend must
// never block: implementations enqueue onto a bounded buffer and report
// backpressure instead of stalling the caller. Implementations must be
// pointer types so the registry can compare connection identity.
type Sender interface {
	TrySend(frame []byte) error
}

// Registry maps a user to their single live signaling connection. A user
// holds at most one connection at a time: a second Register for the same
// user silently supersedes the first. The superseded connection is not
// closed here, it simply stops being addressable.
type Registry struct {
	mu     sync.RWMutex
	byUser map[uuid.UUID]Sender
	byConn map[Sender]uuid.UUID
}

// NewRegistry creates an empty connection registry
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[uuid.UUID]Sender),
		byConn: make(map[Sender]uuid.UUID),
	}
}

// Register binds userID to conn, superseding any prior connection
func (r *Registry) Register(userID uuid.UUID, conn Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byUser[userID]; ok {
		delete(r.byConn, old)
	}
	r.byUser[userID] = conn
	r.byConn[conn] = userID
}

// Unregister removes the mapping only while conn still owns it. A stale
// unregister arriving after a supersession is a no-op, so a late close of
// the old connection cannot tear down the replacement.
func (r *Registry) Unregister(userID uuid.UUID, conn Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.byUser[userID]; ok && cur == conn {
		delete(r.byUser, userID)
		delete(r.byConn, conn)
	}
}

// UnregisterUser removes whatever connection the user currently holds
func (r *Registry) UnregisterUser(userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.byUser[userID]; ok {
		delete(r.byUser, userID)
		delete(r.byConn, cur)
	}
}

// Owner resolves a live connection back to its user. A superseded
// connection no longer resolves.
func (r *Registry) Owner(conn Sender) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.byConn[conn]
	return userID, ok
}

// Send delivers a frame best-effort. An unknown user means the recipient
// is offline and the frame is dropped; signaling is fire-and-forget, never
// queued or retried.
func (r *Registry) Send(userID uuid.UUID, frame []byte) {
	r.mu.RLock()
	conn, ok := r.byUser[userID]
	r.mu.RUnlock()

	if !ok {
		return
	}
	_ = conn.TrySend(frame)
}

// Len reports the number of registered connections
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
