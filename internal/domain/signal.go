package domain

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Signal message types exchanged over the realtime channel.
// Offer/Answer/IceCandidate carry opaque negotiation payloads relayed
// verbatim between the two participants of a call.
const (
	SignalOffer        = "offer"
	SignalAnswer       = "answer"
	SignalIceCandidate = "ice-candidate"

	// SignalCallEnd is a client request to end a call over the realtime channel.
	SignalCallEnd = "call-end"

	// Server-originated notices.
	SignalCallIncoming = "call-incoming"
	SignalCallEnded    = "call-ended"
	SignalError        = "error"
)

// SignalMessage is one signaling frame in transit. Ephemeral: never persisted.
// Field names match the browser wire format.
type SignalMessage struct {
	Type    string          `json:"type"`
	CallID  uuid.UUID       `json:"callId"`
	From    uuid.UUID       `json:"from,omitempty"`
	To      uuid.UUID       `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// IsRelayable reports whether the message type is peer-to-peer negotiation
// traffic that the coordinator forwards.
func (m *SignalMessage) IsRelayable() bool {
	switch m.Type {
	case SignalOffer, SignalAnswer, SignalIceCandidate:
		return true
	}
	return false
}
