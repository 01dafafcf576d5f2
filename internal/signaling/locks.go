package signaling

import (
	"sync"

	"github.com/google/uuid"
)

// callLocks serializes relay and end-call handling per call id, so concurrent
// messages for one call cannot race past the active transition or
// double-trigger ended. Entries are reference counted and removed once idle.
type callLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*callLock
}

type callLock struct {
	mu   sync.Mutex
	refs int
}

func newCallLocks() *callLocks {
	return &callLocks{locks: make(map[uuid.UUID]*callLock)}
}

// lock acquires the critical section for callID and returns the release func
func (l *callLocks) lock(callID uuid.UUID) func() {
	l.mu.Lock()
	cl := l.locks[callID]
	if cl == nil {
		cl = &callLock{}
		l.locks[callID] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.mu.Lock()

	return func() {
		cl.mu.Unlock()
		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.locks, callID)
		}
		l.mu.Unlock()
	}
}
