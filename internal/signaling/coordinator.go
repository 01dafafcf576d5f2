package signaling

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voicelink-backend/internal/domain"
	"voicelink-backend/pkg/constants"
	"voicelink-backend/pkg/errors"
	"voicelink-backend/pkg/metrics"
)

// CallStore is the durable source of truth for call records and status.
// Transitions are conditional: MarkActive/MarkEnded report false when the
// call was not in the expected state, so concurrent transitions cannot both win.
type CallStore interface {
	GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error)
	MarkActive(ctx context.Context, callID uuid.UUID) (bool, error)
	MarkEnded(ctx context.Context, callID uuid.UUID) (bool, error)
	GetOpenCallsForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Call, error)
}

// Presence is notified when a participant gains or loses their realtime
// connectivity. Best-effort; failures are logged, never surfaced.
type Presence interface {
	SetUserOnline(ctx context.Context, userID uuid.UUID) error
	SetUserOffline(ctx context.Context, userID uuid.UUID) error
}

// Coordinator relays signaling messages between the two participants of a
// call and owns the call state machine. The REST surface and the realtime
// surface both end calls through here, so they observe identical rules.
type Coordinator struct {
	registry *Registry
	store    CallStore
	presence Presence
	metrics  *metrics.Metrics
	log      *zap.Logger

	locks *callLocks
}

// NewCoordinator creates a signaling coordinator. presence and m may be nil.
func NewCoordinator(registry *Registry, store CallStore, presence Presence, m *metrics.Metrics, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		registry: registry,
		store:    store,
		presence: presence,
		metrics:  m,
		log:      log,
		locks:    newCallLocks(),
	}
}

// OnConnect registers an authenticated connection and marks the user online
func (co *Coordinator) OnConnect(ctx context.Context, userID uuid.UUID, conn Conn) {
	co.registry.Register(userID, conn)

	if co.presence != nil {
		if err := co.presence.SetUserOnline(ctx, userID); err != nil {
			co.log.Warn("failed to mark user online",
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
	}
}

// Relay validates an inbound signaling message and forwards it to the
// addressed peer's live connections. The payload is opaque and forwarded
// verbatim. An offline recipient is not an error: the message is dropped
// silently (at-most-once, best-effort delivery, no queuing).
func (co *Coordinator) Relay(ctx context.Context, sender Conn, msg *domain.SignalMessage) error {
	senderID, ok := co.registry.Owner(sender)
	if !ok {
		// should not happen for a registered connection
		return co.reject(errors.UnauthenticatedError("connection has no authenticated identity"))
	}

	if !msg.IsRelayable() {
		return co.reject(errors.BadRequestError("unsupported signal type: " + msg.Type))
	}

	unlock := co.locks.lock(msg.CallID)
	defer unlock()

	call, err := co.store.GetByID(ctx, msg.CallID)
	if err != nil {
		return co.reject(err)
	}

	// Hard security boundary: a connection may only speak as the identity it
	// authenticated with, and only within calls it is a party to.
	if !call.HasParticipant(senderID) || msg.From != senderID {
		return co.reject(errors.ForbiddenError("not a participant of this call"))
	}

	if call.Status == domain.CallStatusEnded {
		return co.reject(errors.InvalidStateError("call has ended"))
	}

	counterpart, _ := call.Counterpart(senderID)
	if msg.To != counterpart {
		return co.reject(errors.BadRequestError("recipient is not the other party of this call"))
	}

	co.deliver(msg.To, msg)

	// First relayed answer engages the callee: created -> active. The store
	// transition is conditional, so a concurrent relay cannot re-apply it.
	// On a store failure the transition simply has not happened; the caller
	// may retry.
	if msg.Type == domain.SignalAnswer && call.Status == domain.CallStatusCreated {
		activated, err := co.store.MarkActive(ctx, msg.CallID)
		if err != nil {
			return co.reject(err)
		}
		if activated {
			if co.metrics != nil {
				co.metrics.CallStarted()
			}
			co.log.Info("call active",
				zap.String("call_id", msg.CallID.String()))
		}
	}

	if co.metrics != nil {
		co.metrics.RecordSignalingRelay(msg.Type)
	}

	return nil
}

// EndCall transitions a call to ended on behalf of one of its participants
// and notifies the other participant's live connections. Ending an already
// ended call is a no-op, not an error, so racing end requests stay harmless.
func (co *Coordinator) EndCall(ctx context.Context, callID, requesterID uuid.UUID) error {
	unlock := co.locks.lock(callID)
	defer unlock()

	call, err := co.store.GetByID(ctx, callID)
	if err != nil {
		return co.reject(err)
	}

	if !call.HasParticipant(requesterID) {
		return co.reject(errors.ForbiddenError("not a participant of this call"))
	}

	return co.endLocked(ctx, call, requesterID)
}

// EndCallFrom resolves the sender's authenticated identity and ends the call.
// Used by the realtime surface.
func (co *Coordinator) EndCallFrom(ctx context.Context, sender Conn, callID uuid.UUID) error {
	senderID, ok := co.registry.Owner(sender)
	if !ok {
		return co.reject(errors.UnauthenticatedError("connection has no authenticated identity"))
	}

	return co.EndCall(ctx, callID, senderID)
}

// OnDisconnect unregisters a connection. When the participant's last
// connection is gone, every non-ended call they are party to is terminated
// implicitly: there are no reconnection/resume semantics. Store failures here
// are logged, never surfaced, and never block registry cleanup (which has
// already happened by then).
func (co *Coordinator) OnDisconnect(conn Conn) {
	userID, remaining, ok := co.registry.Unregister(conn)
	if !ok || remaining > 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
	defer cancel()

	if co.presence != nil {
		if err := co.presence.SetUserOffline(ctx, userID); err != nil {
			co.log.Warn("failed to mark user offline",
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
	}

	calls, err := co.store.GetOpenCallsForUser(ctx, userID)
	if err != nil {
		co.log.Error("failed to look up open calls on disconnect",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	for _, call := range calls {
		unlock := co.locks.lock(call.CallID)
		if err := co.endLocked(ctx, call, userID); err != nil {
			co.log.Error("failed to end call on disconnect",
				zap.String("call_id", call.CallID.String()),
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
		unlock()
	}
}

// NotifyIncoming tells the callee's live connections about a newly created
// call. Best-effort: an offline callee simply learns nothing.
func (co *Coordinator) NotifyIncoming(call *domain.Call) {
	co.deliver(call.CalleeID, &domain.SignalMessage{
		Type:   domain.SignalCallIncoming,
		CallID: call.CallID,
		From:   call.CallerID,
	})
}

// endLocked applies the ended transition and notifies the counterpart.
// Caller must hold the call lock.
func (co *Coordinator) endLocked(ctx context.Context, call *domain.Call, requesterID uuid.UUID) error {
	ended, err := co.store.MarkEnded(ctx, call.CallID)
	if err != nil {
		return co.reject(err)
	}
	if !ended {
		// already ended by a concurrent request or disconnect
		return nil
	}

	if co.metrics != nil {
		co.metrics.CallEnded(string(call.Status))
	}
	co.log.Info("call ended",
		zap.String("call_id", call.CallID.String()),
		zap.String("ended_by", requesterID.String()))

	other, _ := call.Counterpart(requesterID)
	co.deliver(other, &domain.SignalMessage{
		Type:   domain.SignalCallEnded,
		CallID: call.CallID,
	})

	return nil
}

// deliver fans a message out to every live connection of the recipient.
// No live connection means the message is dropped, silently.
func (co *Coordinator) deliver(to uuid.UUID, msg *domain.SignalMessage) {
	conns := co.registry.ConnectionsFor(to)
	if len(conns) == 0 {
		if co.metrics != nil {
			co.metrics.RecordSignalingDrop()
		}
		co.log.Debug("peer offline, signal dropped",
			zap.String("to", to.String()),
			zap.String("type", msg.Type))
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		co.log.Error("failed to marshal signal", zap.Error(err))
		return
	}

	for _, conn := range conns {
		conn.Send(data)
	}
}

// reject counts a refused message and passes the error through unchanged.
// Errors are reported to the originating connection only and never alter
// call or registry state.
func (co *Coordinator) reject(err error) error {
	if co.metrics != nil {
		co.metrics.RecordSignalingError(string(errors.GetAppError(err).Code))
	}
	return err
}
