package ratelimit

import (
	"context"
	"fmt"

	"pollstream/pkg/redis"

	"go.uber.org/zap"
)

// RedisLimiter counts actions in redis so the window survives restarts and
// is shared across server processes.
type RedisLimiter struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisLimiter creates a redis-backed fixed-window limiter
func NewRedisLimiter(client *redis.Client, logger *zap.Logger) *RedisLimiter {
	return &RedisLimiter{client: client, logger: logger}
}

// Allow atomically increments the window counter for (policy, identity).
// INCR creates the key at 1 on first use; the expiry set at that point
// defines the window. Redis serializes the INCR, so concurrent callers
// cannot lose updates.
func (l *RedisLimiter) Allow(ctx context.Context, policy Policy, identity string) (Decision, error) {
	key := l.client.KeyBuilder.KeyRateWindow(policy.Name, identity)

	count, err := l.client.Incr(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to increment rate window: %w", err)
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, policy.Window); err != nil {
			l.logger.Warn("failed to set rate window expiry",
				zap.String("policy", policy.Name),
				zap.Error(err))
		}
	}

	if count <= policy.Limit {
		return Decision{Allowed: true, Remaining: policy.Limit - count}, nil
	}

	retryAfter, err := l.client.TTL(ctx, key)
	if err != nil || retryAfter < 0 {
		// Key without expiry (lost Expire above); fall back to a full window
		retryAfter = policy.Window
	}

	return Decision{Allowed: false, RetryAfter: retryAfter}, nil
}

// VotePollIdentity builds the compound identity for the per-poll vote policy
func VotePollIdentity(voterID, pollID string) string {
	return voterID + ":" + pollID
}

var _ Limiter = (*RedisLimiter)(nil)
