package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	"voicelink-backend/internal/domain"
	"voicelink-backend/pkg/errors"
	"voicelink-backend/pkg/jwt"
)

// Mocks

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error {
	args := m.Called(ctx, jti, ttl)
	return args.Error(0)
}

func newTestService(userRepo *MockUserRepository, sessionRepo *MockSessionRepository) *Service {
	jwtManager := jwt.NewJWTManager("test-secret-key-at-least-32-chars!!", 15*time.Minute, 24*time.Hour)
	return NewService(userRepo, sessionRepo, jwtManager, nil)
}

func TestRegister(t *testing.T) {
	userRepo := new(MockUserRepository)
	service := newTestService(userRepo, nil)

	ctx := context.Background()
	userRepo.On("UsernameExists", ctx, "alice").Return(false, nil)
	userRepo.On("Create", ctx, mock.AnythingOfType("*domain.User")).Return(nil)

	user, err := service.Register(ctx, &RegisterInput{
		Username: "alice",
		Password: "password123",
	})

	assert.NoError(t, err)
	assert.NotNil(t, user)
	assert.Equal(t, "alice", user.Username)
	userRepo.AssertExpectations(t)

	// stored hash must verify against the plaintext
	created := userRepo.Calls[1].Arguments.Get(1).(*domain.User)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("password123")))
}

func TestRegister_UsernameTaken(t *testing.T) {
	userRepo := new(MockUserRepository)
	service := newTestService(userRepo, nil)

	ctx := context.Background()
	userRepo.On("UsernameExists", ctx, "alice").Return(true, nil)

	user, err := service.Register(ctx, &RegisterInput{
		Username: "alice",
		Password: "password123",
	})

	assert.Nil(t, user)
	assert.Error(t, err)
	userRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_ShortUsername(t *testing.T) {
	userRepo := new(MockUserRepository)
	service := newTestService(userRepo, nil)

	user, err := service.Register(context.Background(), &RegisterInput{
		Username: "ab",
		Password: "password123",
	})

	assert.Nil(t, user)
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))
}

func TestRegister_ShortPassword(t *testing.T) {
	userRepo := new(MockUserRepository)
	service := newTestService(userRepo, nil)

	user, err := service.Register(context.Background(), &RegisterInput{
		Username: "alice",
		Password: "short",
	})

	assert.Nil(t, user)
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))
}

func TestLogin(t *testing.T) {
	userRepo := new(MockUserRepository)
	service := newTestService(userRepo, nil)

	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	user := &domain.User{
		UserID:       uuid.New(),
		Username:     "alice",
		PasswordHash: string(hash),
	}

	ctx := context.Background()
	userRepo.On("GetByUsername", ctx, "alice").Return(user, nil)

	output, err := service.Login(ctx, &LoginInput{
		Username: "alice",
		Password: "password123",
	})

	assert.NoError(t, err)
	assert.NotNil(t, output)
	assert.Equal(t, "alice", output.User.Username)
	assert.NotEmpty(t, output.AccessToken)
	assert.NotEmpty(t, output.RefreshToken)
}

func TestLogin_WrongPassword(t *testing.T) {
	userRepo := new(MockUserRepository)
	service := newTestService(userRepo, nil)

	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	user := &domain.User{
		UserID:       uuid.New(),
		Username:     "alice",
		PasswordHash: string(hash),
	}

	ctx := context.Background()
	userRepo.On("GetByUsername", ctx, "alice").Return(user, nil)

	output, err := service.Login(ctx, &LoginInput{
		Username: "alice",
		Password: "wrongpassword",
	})

	assert.Nil(t, output)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidCreds))
}

func TestLogin_UnknownUser(t *testing.T) {
	userRepo := new(MockUserRepository)
	service := newTestService(userRepo, nil)

	ctx := context.Background()
	userRepo.On("GetByUsername", ctx, "ghost").Return(nil, errors.UserNotFoundError())

	output, err := service.Login(ctx, &LoginInput{
		Username: "ghost",
		Password: "password123",
	})

	// unknown user and bad password are indistinguishable to the client
	assert.Nil(t, output)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidCreds))
}

func TestLogout_BlacklistsToken(t *testing.T) {
	userRepo := new(MockUserRepository)
	sessionRepo := new(MockSessionRepository)
	service := newTestService(userRepo, sessionRepo)

	jwtManager := jwt.NewJWTManager("test-secret-key-at-least-32-chars!!", 15*time.Minute, 24*time.Hour)
	token, err := jwtManager.GenerateAccessToken(uuid.New(), "alice")
	assert.NoError(t, err)

	sessionRepo.On("BlacklistToken", mock.Anything, "some-jti", mock.AnythingOfType("time.Duration")).Return(nil).Once()

	err = service.Logout(context.Background(), token, "some-jti")

	assert.NoError(t, err)
	sessionRepo.AssertExpectations(t)
}

func TestLogout_WithoutJTIIsNoop(t *testing.T) {
	userRepo := new(MockUserRepository)
	sessionRepo := new(MockSessionRepository)
	service := newTestService(userRepo, sessionRepo)

	err := service.Logout(context.Background(), "whatever", "")

	assert.NoError(t, err)
	sessionRepo.AssertNotCalled(t, "BlacklistToken", mock.Anything, mock.Anything, mock.Anything)
}
