package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterBlocksOverLimit(t *testing.T) {
	limiter := NewMemoryLimiter()
	ctx := context.Background()
	policy := Policy{Name: "test", Limit: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		decision, err := limiter.Allow(ctx, policy, "voter-1")
		require.NoError(t, err)
		assert.True(t, decision.Allowed, "action %d should be allowed", i+1)
		assert.Equal(t, int64(2-i), decision.Remaining)
	}

	decision, err := limiter.Allow(ctx, policy, "voter-1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Greater(t, decision.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, decision.RetryAfter, policy.Window)
}

func TestMemoryLimiterIsolatesIdentities(t *testing.T) {
	limiter := NewMemoryLimiter()
	ctx := context.Background()
	policy := Policy{Name: "test", Limit: 1, Window: time.Minute}

	decision, err := limiter.Allow(ctx, policy, "voter-1")
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	decision, err = limiter.Allow(ctx, policy, "voter-1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	// A different voter has their own window
	decision, err = limiter.Allow(ctx, policy, "voter-2")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestMemoryLimiterIsolatesPolicies(t *testing.T) {
	limiter := NewMemoryLimiter()
	ctx := context.Background()
	strict := Policy{Name: "strict", Limit: 1, Window: time.Minute}
	loose := Policy{Name: "loose", Limit: 10, Window: time.Minute}

	decision, err := limiter.Allow(ctx, strict, "voter-1")
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	decision, err = limiter.Allow(ctx, strict, "voter-1")
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	// Exhausting one policy leaves the other untouched
	decision, err = limiter.Allow(ctx, loose, "voter-1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestMemoryLimiterWindowReset(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter()
	limiter.now = func() time.Time { return current }

	ctx := context.Background()
	policy := Policy{Name: "test", Limit: 1, Window: time.Minute}

	decision, err := limiter.Allow(ctx, policy, "voter-1")
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	decision, err = limiter.Allow(ctx, policy, "voter-1")
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	// Once the window elapses the counter starts over
	current = current.Add(time.Minute)
	decision, err = limiter.Allow(ctx, policy, "voter-1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestMemoryLimiterConcurrentCounting(t *testing.T) {
	limiter := NewMemoryLimiter()
	ctx := context.Background()
	policy := Policy{Name: "test", Limit: 50, Window: time.Minute}

	const workers = 100
	var allowed int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := limiter.Allow(ctx, policy, "voter-1")
			if err != nil {
				return
			}
			if decision.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// No lost updates: exactly Limit of the concurrent calls pass
	assert.Equal(t, policy.Limit, allowed)
}

func TestMemoryLimiterPrune(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter()
	limiter.now = func() time.Time { return current }

	ctx := context.Background()
	policy := Policy{Name: "test", Limit: 1, Window: time.Minute}

	_, err := limiter.Allow(ctx, policy, "voter-1")
	require.NoError(t, err)
	require.Len(t, limiter.windows, 1)

	current = current.Add(2 * time.Minute)
	limiter.Prune(policy)

	assert.Empty(t, limiter.windows)
}

func TestPolicyExempts(t *testing.T) {
	exempting := Policy{Name: "exempting", Limit: 1, Window: time.Minute, ExemptAdmins: true}
	strict := Policy{Name: "strict", Limit: 1, Window: time.Minute, ExemptAdmins: false}

	assert.True(t, exempting.Exempts(true))
	assert.False(t, exempting.Exempts(false))

	// Policies that do not exempt bind admins too
	assert.False(t, strict.Exempts(true))
	assert.False(t, strict.Exempts(false))
}
