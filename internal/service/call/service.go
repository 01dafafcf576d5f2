package call

import (
	"context"
	"time"

	"github.com/google/uuid"

	"voicelink-backend/internal/domain"
	"voicelink-backend/pkg/constants"
	"voicelink-backend/pkg/errors"
)

// CallRepository interface
type CallRepository interface {
	Create(ctx context.Context, call *domain.Call) error
	GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error)
	GetUserCalls(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Call, error)
}

// UserRepository interface
type UserRepository interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// Coordinator is the shared call state machine. Ending a call goes through it
// so the REST path and the realtime path observe identical transition rules.
type Coordinator interface {
	EndCall(ctx context.Context, callID, requesterID uuid.UUID) error
	NotifyIncoming(call *domain.Call)
}

// Service handles call lifecycle business logic
type Service struct {
	callRepo    CallRepository
	userRepo    UserRepository
	coordinator Coordinator
}

// NewService creates a new call service
func NewService(callRepo CallRepository, userRepo UserRepository, coordinator Coordinator) *Service {
	return &Service{
		callRepo:    callRepo,
		userRepo:    userRepo,
		coordinator: coordinator,
	}
}

// Create starts a new call record in the created state and notifies the
// callee's live connections
func (s *Service) Create(ctx context.Context, callerID, calleeID uuid.UUID) (*domain.Call, error) {
	if calleeID == uuid.Nil {
		return nil, errors.BadRequestError("calleeId required")
	}
	if callerID == calleeID {
		return nil, errors.BadRequestError("cannot call yourself")
	}

	if _, err := s.userRepo.GetByID(ctx, calleeID); err != nil {
		return nil, err
	}

	call := &domain.Call{
		CallID:    uuid.New(),
		CallerID:  callerID,
		CalleeID:  calleeID,
		Status:    domain.CallStatusCreated,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.callRepo.Create(ctx, call); err != nil {
		return nil, err
	}

	s.coordinator.NotifyIncoming(call)

	return call, nil
}

// Get retrieves a call; only its participants may see it
func (s *Service) Get(ctx context.Context, callID, userID uuid.UUID) (*domain.Call, error) {
	call, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}

	if !call.HasParticipant(userID) {
		return nil, errors.ForbiddenError("not a participant of this call")
	}

	return call, nil
}

// End transitions a call to ended through the shared state machine
func (s *Service) End(ctx context.Context, callID, userID uuid.UUID) error {
	return s.coordinator.EndCall(ctx, callID, userID)
}

// History retrieves the user's call history, newest first
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Call, error) {
	if limit <= 0 {
		limit = constants.DefaultPageSize
	}
	if limit > constants.MaxPageSize {
		limit = constants.MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	return s.callRepo.GetUserCalls(ctx, userID, limit, offset)
}
