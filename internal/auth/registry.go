package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoSession is returned when no refresh token is registered for a principal.
var ErrNoSession = errors.New("auth: no active session")

const registryKeyPrefix = "refresh_token:"

// SessionRegistry keeps the single currently valid refresh token per principal.
type SessionRegistry interface {
	Store(ctx context.Context, principalID, token string, ttl time.Duration) error
	Current(ctx context.Context, principalID string) (string, error)
	// Rotate replaces old with next only if old is still the registered
	// token. It reports false when another caller rotated first.
	Rotate(ctx context.Context, principalID, old, next string, ttl time.Duration) (bool, error)
	Revoke(ctx context.Context, principalID string) error
}

var rotateScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
	return 1
end
return 0
`)

// RedisRegistry stores refresh tokens in Redis under refresh_token:<id>.
type RedisRegistry struct {
	client redis.UniversalClient
}

// NewRedisRegistry constructs a RedisRegistry.
func NewRedisRegistry(client redis.UniversalClient) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func registryKey(principalID string) string {
	return registryKeyPrefix + principalID
}

// Store registers token for the principal, replacing any previous token.
func (r *RedisRegistry) Store(ctx context.Context, principalID, token string, ttl time.Duration) error {
	if err := r.client.Set(ctx, registryKey(principalID), token, ttl).Err(); err != nil {
		return fmt.Errorf("registry store: %w", err)
	}
	return nil
}

// Current returns the registered token or ErrNoSession.
func (r *RedisRegistry) Current(ctx context.Context, principalID string) (string, error) {
	token, err := r.client.Get(ctx, registryKey(principalID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNoSession
		}
		return "", fmt.Errorf("registry get: %w", err)
	}
	return token, nil
}

// Rotate performs an atomic compare-and-set of the registered token.
func (r *RedisRegistry) Rotate(ctx context.Context, principalID, old, next string, ttl time.Duration) (bool, error) {
	res, err := rotateScript.Run(ctx, r.client, []string{registryKey(principalID)}, old, next, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("registry rotate: %w", err)
	}
	return res == 1, nil
}

// Revoke removes any registered token for the principal.
func (r *RedisRegistry) Revoke(ctx context.Context, principalID string) error {
	if err := r.client.Del(ctx, registryKey(principalID)).Err(); err != nil {
		return fmt.Errorf("registry revoke: %w", err)
	}
	return nil
}

var _ SessionRegistry = (*RedisRegistry)(nil)
