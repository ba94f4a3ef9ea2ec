package security

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_BasicEnforcement(t *testing.T) {
	limiter := NewRateLimiter(2.0, 2)

	assert.True(t, limiter.Allow("U1"), "first event is within burst")
	assert.True(t, limiter.Allow("U1"), "second event is within burst")
	assert.False(t, limiter.Allow("U1"), "third event exceeds burst")
}

func TestRateLimiter_RateReset(t *testing.T) {
	limiter := NewRateLimiter(2.0, 2)

	limiter.Allow("U1")
	limiter.Allow("U1")
	assert.False(t, limiter.Allow("U1"))

	time.Sleep(600 * time.Millisecond)
	assert.True(t, limiter.Allow("U1"), "tokens refill over time")
}

func TestRateLimiter_UsersAreIndependent(t *testing.T) {
	limiter := NewRateLimiter(1.0, 1)

	assert.True(t, limiter.Allow("U1"))
	assert.False(t, limiter.Allow("U1"))
	assert.True(t, limiter.Allow("U2"), "another user has its own budget")
}

func TestRateLimiter_ManyUsersDoNotShareBudget(t *testing.T) {
	limiter := NewRateLimiter(1.0, 3)

	for i := 0; i < 200; i++ {
		user := fmt.Sprintf("U%d", i)
		for j := 0; j < 3; j++ {
			assert.True(t, limiter.Allow(user), "user %s event %d", user, j)
		}
	}
	assert.Equal(t, 200, limiter.Tracked())
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, limiter.Allow("U1"))
	}
	assert.Zero(t, limiter.Tracked())
}

func TestRateLimiter_Prune(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(5, 5)
	limiter.now = func() time.Time { return now }

	limiter.Allow("old")
	now = now.Add(time.Hour)
	limiter.Allow("fresh")

	assert.Equal(t, 2, limiter.Tracked())
	assert.Equal(t, 1, limiter.Prune(30*time.Minute))
	assert.Equal(t, 1, limiter.Tracked())
}

func TestRateLimiter_Concurrent(t *testing.T) {
	limiter := NewRateLimiter(1, 10)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow("U1") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, allowed.Load(), int32(11))
	assert.GreaterOrEqual(t, allowed.Load(), int32(10))
}
