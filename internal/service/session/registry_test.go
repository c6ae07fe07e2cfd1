package session

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// fakeConn is a Sender that records every frame handed to it.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *fakeConn) TrySend(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// TestRegistrySendDelivers tests that a registered user receives frames
func TestRegistrySendDelivers(t *testing.T) {
	registry := NewRegistry()
	userID := uuid.New()
	conn := &fakeConn{}

	registry.Register(userID, conn)
	registry.Send(userID, []byte(`{"type":"test"}`))

	assert.Equal(t, 1, conn.frameCount())
	assert.Equal(t, 1, registry.Len())
}

// TestRegistrySendUnknownUser tests that frames to offline users are dropped
func TestRegistrySendUnknownUser(t *testing.T) {
	registry := NewRegistry()

	registry.Send(uuid.New(), []byte(`{"type":"test"}`))

	assert.Equal(t, 0, registry.Len())
}

// TestRegistrySupersede tests that a second connection replaces the first
func TestRegistrySupersede(t *testing.T) {
	registry := NewRegistry()
	userID := uuid.New()
	first := &fakeConn{}
	second := &fakeConn{}

	registry.Register(userID, first)
	registry.Register(userID, second)
	registry.Send(userID, []byte(`{"type":"test"}`))

	assert.Equal(t, 0, first.frameCount())
	assert.Equal(t, 1, second.frameCount())
	assert.Equal(t, 1, registry.Len())

	// the superseded connection no longer resolves to the user
	_, ok := registry.Owner(first)
	assert.False(t, ok)
	owner, ok := registry.Owner(second)
	assert.True(t, ok)
	assert.Equal(t, userID, owner)
}

// TestRegistryUnregisterStaleConnection tests that unregistering a
// superseded connection does not tear down the replacement
func TestRegistryUnregisterStaleConnection(t *testing.T) {
	registry := NewRegistry()
	userID := uuid.New()
	first := &fakeConn{}
	second := &fakeConn{}

	registry.Register(userID, first)
	registry.Register(userID, second)
	registry.Unregister(userID, first)

	registry.Send(userID, []byte(`{"type":"test"}`))
	assert.Equal(t, 1, second.frameCount())

	registry.Unregister(userID, second)
	assert.Equal(t, 0, registry.Len())
}

// TestRegistryUnregisterUser tests unconditional removal
func TestRegistryUnregisterUser(t *testing.T) {
	registry := NewRegistry()
	userID := uuid.New()
	conn := &fakeConn{}

	registry.Register(userID, conn)
	registry.UnregisterUser(userID)

	assert.Equal(t, 0, registry.Len())
	_, ok := registry.Owner(conn)
	assert.False(t, ok)

	// a second removal is a no-op
	registry.UnregisterUser(userID)
	assert.Equal(t, 0, registry.Len())
}
