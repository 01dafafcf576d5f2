package middleware

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	appJWT "voicelink-backend/pkg/jwt"
)

// TokenBlacklist answers whether a token ID has been blacklisted
type TokenBlacklist interface {
	IsTokenBlacklisted(ctx context.Context, jti string) (bool, error)
}

// RedisRevocationChecker implements RevocationChecker on top of the
// Redis-backed token blacklist
type RedisRevocationChecker struct {
	blacklist TokenBlacklist
}

// NewRedisRevocationChecker creates a new RedisRevocationChecker
func NewRedisRevocationChecker(blacklist TokenBlacklist) *RedisRevocationChecker {
	return &RedisRevocationChecker{blacklist: blacklist}
}

// IsTokenRevoked checks if the token's jti is in the blacklist
func (c *RedisRevocationChecker) IsTokenRevoked(ctx context.Context, tokenString string) (bool, error) {
	// Signature was already validated by the auth middleware
	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, &appJWT.Claims{})
	if err != nil {
		return false, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*appJWT.Claims)
	if !ok {
		return false, fmt.Errorf("invalid claims")
	}

	if claims.ID == "" {
		return false, nil
	}

	return c.blacklist.IsTokenBlacklisted(ctx, claims.ID)
}
