// Package signaling pairs call participants with their live realtime
// connections and relays WebRTC negotiation messages between them, driving
// the call state machine (created -> active -> ended) against the call store.
package signaling

import (
	"sync"

	"github.com/google/uuid"
)

// Conn is a live realtime connection handle owned by the transport layer.
type Conn interface {
	// Send enqueues raw bytes for delivery to the peer. Returns false when
	// the connection buffer is full or the connection is closed. Delivery
	// is best-effort; senders are never notified of the outcome.
	Send(data []byte) bool
}

// Registry is the authoritative mapping of participant id to live
// connections. A user may hold several connections (multiple tabs/devices).
// The registry holds no call-specific state.
type Registry struct {
	mu     sync.RWMutex
	byUser map[uuid.UUID]map[Conn]struct{}
	owner  map[Conn]uuid.UUID
}

// NewRegistry creates an empty connection registry
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[uuid.UUID]map[Conn]struct{}),
		owner:  make(map[Conn]uuid.UUID),
	}
}

// Register adds a connection to the participant's set. A handle belongs to at
// most one participant: re-registering moves it.
func (r *Registry) Register(userID uuid.UUID, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.owner[conn]; ok {
		delete(r.byUser[prev], conn)
		if len(r.byUser[prev]) == 0 {
			delete(r.byUser, prev)
		}
	}

	set := r.byUser[userID]
	if set == nil {
		set = make(map[Conn]struct{})
		r.byUser[userID] = set
	}
	set[conn] = struct{}{}
	r.owner[conn] = userID
}

// Unregister removes a connection from whichever participant owns it and
// returns the owner plus the number of connections that participant still
// holds. Unknown handles are a silent no-op (ok=false) so disconnect races
// never raise errors.
func (r *Registry) Unregister(conn Conn) (userID uuid.UUID, remaining int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok = r.owner[conn]
	if !ok {
		return uuid.Nil, 0, false
	}

	delete(r.owner, conn)
	set := r.byUser[userID]
	delete(set, conn)
	remaining = len(set)
	if remaining == 0 {
		delete(r.byUser, userID)
	}

	return userID, remaining, true
}

// Owner returns the participant a connection authenticated as
func (r *Registry) Owner(conn Conn) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.owner[conn]
	return userID, ok
}

// ConnectionsFor returns a snapshot of the participant's live connections,
// possibly empty
func (r *Registry) ConnectionsFor(userID uuid.UUID) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[userID]
	conns := make([]Conn, 0, len(set))
	for conn := range set {
		conns = append(conns, conn)
	}
	return conns
}
