package signaling

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"voicelink-backend/internal/domain"
	"voicelink-backend/pkg/errors"
)

// Mocks

type MockCallStore struct {
	mock.Mock
}

func (m *MockCallStore) GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	args := m.Called(ctx, callID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Call), args.Error(1)
}

func (m *MockCallStore) MarkActive(ctx context.Context, callID uuid.UUID) (bool, error) {
	args := m.Called(ctx, callID)
	return args.Bool(0), args.Error(1)
}

func (m *MockCallStore) MarkEnded(ctx context.Context, callID uuid.UUID) (bool, error) {
	args := m.Called(ctx, callID)
	return args.Bool(0), args.Error(1)
}

func (m *MockCallStore) GetOpenCallsForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Call, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Call), args.Error(1)
}

type MockPresence struct {
	mock.Mock
}

func (m *MockPresence) SetUserOnline(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockPresence) SetUserOffline(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// recordingConn decodes everything sent to it
type recordingConn struct {
	mu   sync.Mutex
	msgs []domain.SignalMessage
}

func (c *recordingConn) Send(data []byte) bool {
	var msg domain.SignalMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return false
	}
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
	return true
}

func (c *recordingConn) received() []domain.SignalMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.SignalMessage(nil), c.msgs...)
}

// Helpers

func newTestCall(status domain.CallStatus) *domain.Call {
	return &domain.Call{
		CallID:   uuid.New(),
		CallerID: uuid.New(),
		CalleeID: uuid.New(),
		Status:   status,
	}
}

func setupCoordinator(store CallStore) (*Coordinator, *Registry) {
	registry := NewRegistry()
	return NewCoordinator(registry, store, nil, nil, nil), registry
}

// Relay

func TestRelay_OfferDeliveredVerbatim(t *testing.T) {
	store := new(MockCallStore)
	co, registry := setupCoordinator(store)

	call := newTestCall(domain.CallStatusCreated)
	caller := &recordingConn{}
	callee := &recordingConn{}
	registry.Register(call.CallerID, caller)
	registry.Register(call.CalleeID, callee)

	store.On("GetByID", mock.Anything, call.CallID).Return(call, nil)

	payload := json.RawMessage(`{"sdp":"v=0..."}`)
	err := co.Relay(context.Background(), caller, &domain.SignalMessage{
		Type:    domain.SignalOffer,
		CallID:  call.CallID,
		From:    call.CallerID,
		To:      call.CalleeID,
		Payload: payload,
	})

	assert.NoError(t, err)
	msgs := callee.received()
	assert.Len(t, msgs, 1)
	assert.Equal(t, domain.SignalOffer, msgs[0].Type)
	assert.Equal(t, call.CallerID, msgs[0].From)
	assert.JSONEq(t, string(payload), string(msgs[0].Payload))

	// an offer must not advance the state machine
	store.AssertNotCalled(t, "MarkActive", mock.Anything, mock.Anything)
	assert.Empty(t, caller.received())
}

func TestRelay_AnswerActivatesCall(t *testing.T) {
	store := new(MockCallStore)
	co, registry := setupCoordinator(store)

	call := newTestCall(domain.CallStatusCreated)
	caller := &recordingConn{}
	callee := &recordingConn{}
	registry.Register(call.CallerID, caller)
	registry.Register(call.CalleeID, callee)

	store.On("GetByID", mock.Anything, call.CallID).Return(call, nil)
	store.On("MarkActive", mock.Anything, call.CallID).Return(true, nil).Once()

	err := co.Relay(context.Background(), callee, &domain.SignalMessage{
		Type:   domain.SignalAnswer,
		CallID: call.CallID,
		From:   call.CalleeID,
		To:     call.CallerID,
	})

	assert.NoError(t, err)
	assert.Len(t, caller.received(), 1)
	store.AssertExpectations(t)
}

func TestRelay_AnswerOnActiveCallDoesNotReactivate(t *testing.T) {
	store := new(MockCallStore)
	co, registry := setupCoordinator(store)

	call := newTestCall(domain.CallStatusActive)
	caller := &recordingConn{}
	callee := &recordingConn{}
	registry.Register(call.CallerID, caller)
	registry.Register(call.CalleeID, callee)

	store.On("GetByID", mock.Anything, call.CallID).Return(call, nil)

	err := co.Relay(context.Background(), callee, &domain.SignalMessage{
		Type:   domain.SignalAnswer,
		CallID: call.CallID,
		From:   call.CalleeID,
		To:     call.CallerID,
	})

	assert.NoError(t, err)
	store.AssertNotCalled(t, "MarkActive", mock.Anything, mock.Anything)
}

func TestRelay_SpoofedSenderRejected(t *testing.T) {
	store := new(MockCallStore)
	co, registry := setupCoordinator(store)

	call := newTestCall(domain.CallStatusActive)
	caller := &recordingConn{}
	callee := &recordingConn{}
	registry.Register(call.CallerID, caller)
	registry.Register(call.CalleeID, callee)

	store.On("GetByID", mock.Anything, call.CallID).Return(call, nil)

	// caller's connection claims to be the callee
	err := co.Relay(context.Background(), caller, &domain.SignalMessage{
		Type:   domain.SignalOffer,
		CallID: call.CallID,
		From:   call.CalleeID,
		To:     call.CallerID,
	})

	assert.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeForbidden))
	assert.Empty(t, callee.received())
	assert.Empty(t, caller.received())
}

func TestRelay_NonParticipantRejected(t *testing.T) {
	store := new(MockCallStore)
	co, registry := setupCoordinator(store)

	call := newTestCall(domain.CallStatusActive)
	mallory := uuid.New()
	intruder := &recordingConn{}
	callee := &recordingConn{}
	registry.Register(mallory, intruder)
	registry.Register(call.CalleeID, callee)

	store.On("GetByID", mock.Anything, call.CallID).Return(call, nil)

	err := co.Relay(context.Background(), intruder, &domain.SignalMessage{
		Type:   domain.SignalIceCandidate,
		CallID: call.CallID,
		From:   mallory,
		To:     call.CalleeID,
	})

	assert.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeForbidden))
	assert.Empty(t, callee.received())
}

func TestRelay_RecipientMustBeCounterpart(t *testing.T) {
	store := new(MockCallStore)
	co, registry := setupCoordinator(store)

	call := newTestCall(domain.CallStatusActive)
	caller := &recordingConn{}
	registry.Register(call.CallerID, caller)

	store.On("GetByID", mock.Anything, call.CallID).Return(call, nil)

	err := co.Relay(context.Background(), caller, &domain.SignalMessage{
		Type:   domain.SignalOffer,
		CallID: call.CallID,
		From:   call.CallerID,
		To:     uuid.New(),
	})

	assert.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeBadRequest))
}

func TestRelay_EndedCallRejected(t *testing.T) {
	store := new(MockCallStore)
	co, registry := setupCoordinator(store)

	call := newTestCall(domain.CallStatusEnded)
	caller := &recordingConn{}
	callee := &recordingConn{}
	registry.Register(call.CallerID, caller)
	registry.Register(call.CalleeID, callee)

	store.On("GetByID", mock.Anything, call.CallID).Return(call, nil)

	err := co.Relay(context.Background(), caller, &domain.SignalMessage{
		Type:   domain.SignalOffer,
		CallID: call.CallID,
		From:   call.CallerID,
		To:     call.CalleeID,
	})

	assert.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidState))
	assert.Empty(t, callee.received())
}

func TestRelay_OfflinePeerDropsSilently(t *testing.T) {
	store := new(MockCallStore)
	co, registry := setupCoordinator(store)

	call := newTestCall(domain.CallStatusActive)
	caller := &recordingConn{}
	registry.Register(call.CallerID, caller)
	// callee has no live connection

	store.On("GetByID", mock.Anything, call.CallID).Return(call, nil)

	err := co.Relay(context.Background(), caller, &domain.SignalMessage{
		Type:   domain.SignalIceCandidate,
		CallID: call.CallID,
		From:   call.CallerID,
		To:     call.CalleeID,
	})

	assert.NoError(t, err)
}

func TestRelay_UnknownCallRejected(t *testing.T) {
	store := new(MockCallStore)
	co, registry := setupCoordinator(store)

	userID := uuid.New()
	conn := &recordingConn{}
	registry.Register(userID, conn)

	callID := uuid.New()
	store.On("GetByID", mock.Anything, callID).Return(nil, errors.CallNotFoundError())

	err := co.Relay(context.Background(), conn, &domain.SignalMessage{
		Type:   domain.SignalOffer,
		CallID: callID,
		From:   userID,
		To:     uuid.New(),
	})

	assert.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCallNotFound))
}

func TestRelay_UnsupportedTypeRejected(t *testing.T) {
	store := new(MockCallStore)
	co, registry := setupCoordinator(store)

	userID := uuid.New()
	conn := &recordingConn{}
	registry.Register(userID, conn)

	err := co.Relay(context.Background(), conn, &domain.SignalMessage{
		Type:   "mute-audio",
		CallID: uuid.New(),
		From:   userID,
	})

	assert.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeBadRequest))
	store.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestRelay_UnregisteredSenderRejected(t *testing.T) {
	store := new(MockCallStore)
	co, _ := setupCoordinator(store)

	err := co.Relay(context.Background(), &recordingConn{}, &domain.SignalMessage{
		Type:   domain.SignalOffer,
		CallID: uuid.New(),
	})

	assert.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnauthenticated))
}

// EndCall

func TestEndCall_NotifiesCounterpart(t *testing.T) {
	store := new(MockCallStore)
	co, registry := setupCoordinator(store)

	call := newTestCall(domain.CallStatusActive)
	callee := &recordingConn{}
	registry.Register(call.CalleeID, callee)

	store.On("GetByID", mock.Anything, call.CallID).Return(call, nil)
	store.On("MarkEnded", mock.Anything, call.CallID).Return(true, nil).Once()

	err := co.EndCall(context.Background(), call.CallID, call.CallerID)

	assert.NoError(t, err)
	msgs := callee.received()
	assert.Len(t, msgs, 1)
	assert.Equal(t, domain.SignalCallEnded, msgs[0].Type)
	assert.Equal(t, call.CallID, msgs[0].CallID)
	store.AssertExpectations(t)
}

func TestEndCall_AlreadyEndedIsNoop(t *testing.T) {
	store := new(MockCallStore)
	co, registry := setupCoordinator(store)

	call := newTestCall(domain.CallStatusActive)
	callee := &recordingConn{}
	registry.Register(call.CalleeID, callee)

	store.On("GetByID", mock.Anything, call.CallID).Return(call, nil)
	store.On("MarkEnded", mock.Anything, call.CallID).Return(false, nil).Once()

	err := co.EndCall(context.Background(), call.CallID, call.CallerID)

	assert.NoError(t, err)
	assert.Empty(t, callee.received())
}

func TestEndCall_NonParticipantRejected(t *testing.T) {
	store := new(MockCallStore)
	co, _ := setupCoordinator(store)

	call := newTestCall(domain.CallStatusActive)
	store.On("GetByID", mock.Anything, call.CallID).Return(call, nil)

	err := co.EndCall(context.Background(), call.CallID, uuid.New())

	assert.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeForbidden))
	store.AssertNotCalled(t, "MarkEnded", mock.Anything, mock.Anything)
}

// memCallStore applies real conditional transitions, for concurrency tests
type memCallStore struct {
	mu   sync.Mutex
	call *domain.Call
}

func (s *memCallStore) GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.call == nil || s.call.CallID != callID {
		return nil, errors.CallNotFoundError()
	}
	snapshot := *s.call
	return &snapshot, nil
}

func (s *memCallStore) MarkActive(ctx context.Context, callID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.call.Status != domain.CallStatusCreated {
		return false, nil
	}
	s.call.Status = domain.CallStatusActive
	return true, nil
}

func (s *memCallStore) MarkEnded(ctx context.Context, callID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.call.Status == domain.CallStatusEnded {
		return false, nil
	}
	s.call.Status = domain.CallStatusEnded
	return true, nil
}

func (s *memCallStore) GetOpenCallsForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.call.Status != domain.CallStatusEnded && s.call.HasParticipant(userID) {
		snapshot := *s.call
		return []*domain.Call{&snapshot}, nil
	}
	return nil, nil
}

func TestEndCall_ConcurrentRequestsEndOnce(t *testing.T) {
	call := newTestCall(domain.CallStatusActive)
	store := &memCallStore{call: call}
	co, registry := setupCoordinator(store)

	callee := &recordingConn{}
	registry.Register(call.CalleeID, callee)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := co.EndCall(context.Background(), call.CallID, call.CallerID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// the losers must be silent no-ops
	assert.Len(t, callee.received(), 1)
}

// OnDisconnect

func TestOnDisconnect_LastConnectionEndsOpenCalls(t *testing.T) {
	call := newTestCall(domain.CallStatusActive)
	store := &memCallStore{call: call}
	co, registry := setupCoordinator(store)

	callerConn := &recordingConn{}
	calleeConn := &recordingConn{}
	registry.Register(call.CallerID, callerConn)
	registry.Register(call.CalleeID, calleeConn)

	co.OnDisconnect(callerConn)

	msgs := calleeConn.received()
	assert.Len(t, msgs, 1)
	assert.Equal(t, domain.SignalCallEnded, msgs[0].Type)

	got, err := store.GetByID(context.Background(), call.CallID)
	assert.NoError(t, err)
	assert.Equal(t, domain.CallStatusEnded, got.Status)
}

func TestOnDisconnect_RemainingConnectionKeepsCallsOpen(t *testing.T) {
	store := new(MockCallStore)
	co, registry := setupCoordinator(store)

	userID := uuid.New()
	tab1 := &recordingConn{}
	tab2 := &recordingConn{}
	registry.Register(userID, tab1)
	registry.Register(userID, tab2)

	co.OnDisconnect(tab1)

	store.AssertNotCalled(t, "GetOpenCallsForUser", mock.Anything, mock.Anything)
	assert.Len(t, registry.ConnectionsFor(userID), 1)
}

func TestOnDisconnect_UnknownConnIsNoop(t *testing.T) {
	store := new(MockCallStore)
	co, _ := setupCoordinator(store)

	co.OnDisconnect(&recordingConn{})

	store.AssertNotCalled(t, "GetOpenCallsForUser", mock.Anything, mock.Anything)
}

// Presence wiring

func TestOnConnect_MarksUserOnline(t *testing.T) {
	store := new(MockCallStore)
	presence := new(MockPresence)
	registry := NewRegistry()
	co := NewCoordinator(registry, store, presence, nil, nil)

	userID := uuid.New()
	presence.On("SetUserOnline", mock.Anything, userID).Return(nil).Once()

	co.OnConnect(context.Background(), userID, &recordingConn{})

	presence.AssertExpectations(t)
	assert.Len(t, registry.ConnectionsFor(userID), 1)
}

func TestNotifyIncoming_DeliversToCallee(t *testing.T) {
	store := new(MockCallStore)
	co, registry := setupCoordinator(store)

	call := newTestCall(domain.CallStatusCreated)
	callee := &recordingConn{}
	registry.Register(call.CalleeID, callee)

	co.NotifyIncoming(call)

	msgs := callee.received()
	assert.Len(t, msgs, 1)
	assert.Equal(t, domain.SignalCallIncoming, msgs[0].Type)
	assert.Equal(t, call.CallID, msgs[0].CallID)
	assert.Equal(t, call.CallerID, msgs[0].From)
}
