package user

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"voicelink-backend/internal/domain"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.User), args.Error(1)
}

type MockPresenceRepository struct {
	mock.Mock
}

func (m *MockPresenceRepository) GetOnlineUsers(ctx context.Context) (map[uuid.UUID]bool, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]bool), args.Error(1)
}

func TestList_MergesOnlineStatus(t *testing.T) {
	userRepo := new(MockUserRepository)
	presenceRepo := new(MockPresenceRepository)
	service := NewService(userRepo, presenceRepo)

	alice := &domain.User{UserID: uuid.New(), Username: "alice"}
	bob := &domain.User{UserID: uuid.New(), Username: "bob"}

	ctx := context.Background()
	userRepo.On("List", ctx).Return([]*domain.User{alice, bob}, nil)
	presenceRepo.On("GetOnlineUsers", ctx).Return(map[uuid.UUID]bool{alice.UserID: true}, nil)

	users, err := service.List(ctx)

	assert.NoError(t, err)
	assert.Len(t, users, 2)
	assert.True(t, users[0].Online)
	assert.False(t, users[1].Online)
}

func TestList_PresenceUnavailableShowsEveryoneOffline(t *testing.T) {
	userRepo := new(MockUserRepository)
	presenceRepo := new(MockPresenceRepository)
	service := NewService(userRepo, presenceRepo)

	alice := &domain.User{UserID: uuid.New(), Username: "alice"}

	ctx := context.Background()
	userRepo.On("List", ctx).Return([]*domain.User{alice}, nil)
	presenceRepo.On("GetOnlineUsers", ctx).Return(nil, fmt.Errorf("redis down"))

	users, err := service.List(ctx)

	assert.NoError(t, err)
	assert.Len(t, users, 1)
	assert.False(t, users[0].Online)
}

func TestGet_StripsPasswordHash(t *testing.T) {
	userRepo := new(MockUserRepository)
	service := NewService(userRepo, nil)

	user := &domain.User{UserID: uuid.New(), Username: "alice", PasswordHash: "hash"}
	ctx := context.Background()
	userRepo.On("GetByID", ctx, user.UserID).Return(user, nil)

	got, err := service.Get(ctx, user.UserID)

	assert.NoError(t, err)
	assert.Equal(t, user.UserID, got.UserID)
	assert.Equal(t, "alice", got.Username)
}
