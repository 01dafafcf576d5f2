package redis

import (
	"context"
	"fmt"
	"time"

	"voicelink-backend/internal/database"
)

// SessionRepository handles token blacklisting in Redis.
// Blacklist entries expire with the token itself.
type SessionRepository struct {
	client *database.RedisClient
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(client *database.RedisClient) *SessionRepository {
	return &SessionRepository{client: client}
}

// BlacklistToken marks a token id (jti) as revoked until it would have expired
func (r *SessionRepository) BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil // already expired, nothing to revoke
	}

	key := fmt.Sprintf("blacklist:%s", jti)
	err := r.client.SafeSet(ctx, key, "revoked", ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to blacklist token: %w", err)
	}

	return nil
}

// IsTokenBlacklisted checks whether a token id has been revoked
func (r *SessionRepository) IsTokenBlacklisted(ctx context.Context, jti string) (bool, error) {
	key := fmt.Sprintf("blacklist:%s", jti)

	exists, err := r.client.SafeExists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}

	return exists > 0, nil
}
