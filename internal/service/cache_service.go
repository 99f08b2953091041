package service

import (
	"context"
	"encoding/json"
	"time"

	"pollstream/internal/domain"
	"pollstream/pkg/redis"

	"go.uber.org/zap"
)

// CacheService fronts the tally read path with an explicit cache: declared
// key function (KeyBuilder.KeyPollResults), declared TTL (TTLPollResults),
// and invalidation on every committed vote. Cache failures degrade to the
// database, never to an error.
type CacheService struct {
	redis  *redis.Client
	logger *zap.Logger
}

// NewCacheService creates a new cache service
func NewCacheService(redisClient *redis.Client, logger *zap.Logger) *CacheService {
	return &CacheService{
		redis:  redisClient,
		logger: logger,
	}
}

// GetResultsWithCache retrieves a poll's tallies with the cache-aside
// pattern
func (c *CacheService) GetResultsWithCache(ctx context.Context, pollID string, dbFallback func(ctx context.Context, pollID string) (*domain.TallyResult, error)) (*domain.TallyResult, error) {
	if c.redis == nil {
		return dbFallback(ctx, pollID)
	}

	cacheKey := c.redis.KeyBuilder.KeyPollResults(pollID)

	cachedData, err := c.redis.Get(ctx, cacheKey)
	if err == nil && cachedData != "" {
		var result domain.TallyResult
		if unmarshalErr := json.Unmarshal([]byte(cachedData), &result); unmarshalErr == nil {
			c.logger.Debug("Results cache hit", zap.String("poll_id", pollID))
			return &result, nil
		}
		c.logger.Warn("Results cache corrupted, falling back to database",
			zap.String("poll_id", pollID))
	} else if err != nil && err != redis.Nil {
		c.logger.Warn("Results cache error, falling back to database",
			zap.String("poll_id", pollID),
			zap.Error(err))
	}

	result, err := dbFallback(ctx, pollID)
	if err != nil {
		return nil, err
	}

	if result != nil {
		go c.cacheResultsAsync(pollID, result)
	}

	return result, nil
}

// InvalidateResults drops the cached tallies for a poll. Called after every
// committed vote so no reader observes a tally inconsistent with the votes
// for longer than one read.
func (c *CacheService) InvalidateResults(ctx context.Context, pollID string) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Delete(ctx, c.redis.KeyBuilder.KeyPollResults(pollID)); err != nil {
		c.logger.Warn("Failed to invalidate results cache",
			zap.String("poll_id", pollID),
			zap.Error(err))
	}
}

// InvalidatePoll drops the cached poll record after a lifecycle mutation
func (c *CacheService) InvalidatePoll(ctx context.Context, pollID string) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Delete(ctx, c.redis.KeyBuilder.KeyPoll(pollID)); err != nil {
		c.logger.Warn("Failed to invalidate poll cache",
			zap.String("poll_id", pollID),
			zap.Error(err))
	}
}

func (c *CacheService) cacheResultsAsync(pollID string, result *domain.TallyResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("Failed to marshal results for cache",
			zap.String("poll_id", pollID),
			zap.Error(err))
		return
	}

	if err := c.redis.Set(ctx, c.redis.KeyBuilder.KeyPollResults(pollID), string(data), redis.TTLPollResults); err != nil {
		c.logger.Debug("Failed to cache results",
			zap.String("poll_id", pollID),
			zap.Error(err))
	}
}
