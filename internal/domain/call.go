package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallStatus is the lifecycle state of a call.
type CallStatus string

const (
	// CallStatusCreated indicates the call record exists but the callee has not engaged yet
	CallStatusCreated CallStatus = "created"

	// CallStatusActive indicates the callee has answered and negotiation is underway
	CallStatusActive CallStatus = "active"

	// CallStatusEnded indicates the call is over; terminal, no transition out
	CallStatusEnded CallStatus = "ended"
)

// Call represents a voice call between exactly two participants.
// Records are retained as history and never deleted.
type Call struct {
	CallID    uuid.UUID  `json:"call_id"`
	CallerID  uuid.UUID  `json:"caller_id"`
	CalleeID  uuid.UUID  `json:"callee_id"`
	Status    CallStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// HasParticipant reports whether userID is the caller or the callee.
func (c *Call) HasParticipant(userID uuid.UUID) bool {
	return c.CallerID == userID || c.CalleeID == userID
}

// Counterpart returns the other participant of the call.
// The second return value is false when userID is not a participant.
func (c *Call) Counterpart(userID uuid.UUID) (uuid.UUID, bool) {
	switch userID {
	case c.CallerID:
		return c.CalleeID, true
	case c.CalleeID:
		return c.CallerID, true
	}
	return uuid.Nil, false
}
