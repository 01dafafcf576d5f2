package signaling

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type stubConn struct {
	sent [][]byte
}

func (c *stubConn) Send(data []byte) bool {
	c.sent = append(c.sent, data)
	return true
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	registry := NewRegistry()
	userID := uuid.New()
	conn := &stubConn{}

	registry.Register(userID, conn)

	owner, ok := registry.Owner(conn)
	assert.True(t, ok)
	assert.Equal(t, userID, owner)

	conns := registry.ConnectionsFor(userID)
	assert.Len(t, conns, 1)
}

func TestRegistry_MultipleConnectionsPerUser(t *testing.T) {
	registry := NewRegistry()
	userID := uuid.New()
	conn1 := &stubConn{}
	conn2 := &stubConn{}

	registry.Register(userID, conn1)
	registry.Register(userID, conn2)

	assert.Len(t, registry.ConnectionsFor(userID), 2)

	_, remaining, ok := registry.Unregister(conn1)
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)

	assert.Len(t, registry.ConnectionsFor(userID), 1)
}

func TestRegistry_UnregisterLastConnection(t *testing.T) {
	registry := NewRegistry()
	userID := uuid.New()
	conn := &stubConn{}

	registry.Register(userID, conn)

	gotUser, remaining, ok := registry.Unregister(conn)
	assert.True(t, ok)
	assert.Equal(t, userID, gotUser)
	assert.Equal(t, 0, remaining)

	assert.Empty(t, registry.ConnectionsFor(userID))
	_, ok = registry.Owner(conn)
	assert.False(t, ok)
}

func TestRegistry_UnregisterUnknownConnIsNoop(t *testing.T) {
	registry := NewRegistry()

	_, _, ok := registry.Unregister(&stubConn{})
	assert.False(t, ok)
}

func TestRegistry_ReregisterMovesConnection(t *testing.T) {
	registry := NewRegistry()
	alice := uuid.New()
	bob := uuid.New()
	conn := &stubConn{}

	registry.Register(alice, conn)
	registry.Register(bob, conn)

	owner, ok := registry.Owner(conn)
	assert.True(t, ok)
	assert.Equal(t, bob, owner)
	assert.Empty(t, registry.ConnectionsFor(alice))
	assert.Len(t, registry.ConnectionsFor(bob), 1)
}

func TestRegistry_ConnectionsForUnknownUser(t *testing.T) {
	registry := NewRegistry()
	assert.Empty(t, registry.ConnectionsFor(uuid.New()))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewRegistry()
	userID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := &stubConn{}
			registry.Register(userID, conn)
			registry.ConnectionsFor(userID)
			registry.Unregister(conn)
		}()
	}
	wg.Wait()

	assert.Empty(t, registry.ConnectionsFor(userID))
}
