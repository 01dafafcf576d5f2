package user

import (
	"context"

	"github.com/google/uuid"

	"voicelink-backend/internal/domain"
)

// UserRepository interface
type UserRepository interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
}

// PresenceRepository interface
type PresenceRepository interface {
	GetOnlineUsers(ctx context.Context) (map[uuid.UUID]bool, error)
}

// Service handles user directory business logic
type Service struct {
	userRepo     UserRepository
	presenceRepo PresenceRepository
}

// NewService creates a new user service. presenceRepo may be nil.
func NewService(userRepo UserRepository, presenceRepo PresenceRepository) *Service {
	return &Service{
		userRepo:     userRepo,
		presenceRepo: presenceRepo,
	}
}

// Get retrieves a single user's public profile
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*domain.UserResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.ToResponse(), nil
}

// List retrieves the user directory with online status, so clients can see
// who is reachable for a call. Presence is best-effort: when the presence
// store is unavailable everyone shows as offline.
func (s *Service) List(ctx context.Context) ([]*domain.UserResponse, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	var online map[uuid.UUID]bool
	if s.presenceRepo != nil {
		online, _ = s.presenceRepo.GetOnlineUsers(ctx)
	}

	responses := make([]*domain.UserResponse, 0, len(users))
	for _, u := range users {
		resp := u.ToResponse()
		resp.Online = online[u.UserID]
		responses = append(responses, resp)
	}

	return responses, nil
}
