package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"voicelink-backend/internal/domain"
	"voicelink-backend/pkg/constants"
	"voicelink-backend/pkg/errors"
	"voicelink-backend/pkg/jwt"
	"voicelink-backend/pkg/metrics"
)

// UserRepository interface
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
}

// SessionRepository interface
type SessionRepository interface {
	BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error
}

// Service handles authentication business logic
type Service struct {
	userRepo    UserRepository
	sessionRepo SessionRepository
	jwtManager  *jwt.JWTManager
	metrics     *metrics.Metrics
}

// NewService creates a new auth service. sessionRepo and m may be nil.
func NewService(userRepo UserRepository, sessionRepo SessionRepository, jwtManager *jwt.JWTManager, m *metrics.Metrics) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		jwtManager:  jwtManager,
		metrics:     m,
	}
}

// RegisterInput contains user registration data
type RegisterInput struct {
	Username string
	Password string
}

// Register creates a new user account
func (s *Service) Register(ctx context.Context, input *RegisterInput) (*domain.UserResponse, error) {
	username := strings.TrimSpace(input.Username)
	if len(username) < constants.MinUsernameLength || len(username) > constants.MaxUsernameLength {
		return nil, errors.ValidationError("username must be between 3 and 50 characters")
	}
	if len(input.Password) < constants.MinPasswordLength {
		return nil, errors.ValidationError("password must be at least 8 characters")
	}

	exists, err := s.userRepo.UsernameExists(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		s.recordAttempt("register", "conflict")
		return nil, errors.UsernameExistsError()
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.InternalError("failed to hash password")
	}

	user := &domain.User{
		UserID:       uuid.New(),
		Username:     username,
		PasswordHash: string(passwordHash),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.recordAttempt("register", "success")

	return user.ToResponse(), nil
}

// LoginInput contains login credentials
type LoginInput struct {
	Username string
	Password string
}

// LoginOutput contains login result
type LoginOutput struct {
	User         *domain.UserResponse
	AccessToken  string
	RefreshToken string
}

// Login authenticates a user and issues tokens
func (s *Service) Login(ctx context.Context, input *LoginInput) (*LoginOutput, error) {
	user, err := s.userRepo.GetByUsername(ctx, input.Username)
	if err != nil {
		s.recordAttempt("login", "failure")
		return nil, errors.InvalidCredentialsError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		s.recordAttempt("login", "failure")
		return nil, errors.InvalidCredentialsError()
	}

	accessToken, err := s.jwtManager.GenerateAccessToken(user.UserID, user.Username)
	if err != nil {
		return nil, errors.InternalError("failed to generate access token")
	}

	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.UserID)
	if err != nil {
		return nil, errors.InternalError("failed to generate refresh token")
	}

	s.recordAttempt("login", "success")

	return &LoginOutput{
		User:         user.ToResponse(),
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Me retrieves the authenticated user's profile
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*domain.UserResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.ToResponse(), nil
}

// Logout blacklists the presented token until its natural expiry
func (s *Service) Logout(ctx context.Context, tokenString, jti string) error {
	if s.sessionRepo == nil || jti == "" {
		return nil
	}

	ttl, err := jwt.TokenRemainingLifetime(tokenString)
	if err != nil {
		return errors.BadRequestError("malformed token")
	}

	if err := s.sessionRepo.BlacklistToken(ctx, jti, ttl); err != nil {
		return errors.InternalError("failed to revoke token")
	}

	return nil
}

func (s *Service) recordAttempt(operation, result string) {
	if s.metrics != nil {
		s.metrics.RecordAuthAttempt(operation, result)
	}
}
