package security

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles inbound chat events per user. Users never share
// a bucket. A rate of zero disables limiting.
type RateLimiter struct {
	users map[string]*userLimiter
	mu    sync.RWMutex

	perUser rate.Limit
	burst   int
	now     func() time.Time
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing eventsPerSecond per user with
// the given burst.
func NewRateLimiter(eventsPerSecond float64, burst int) *RateLimiter {
	limit := rate.Limit(eventsPerSecond)
	if eventsPerSecond <= 0 {
		limit = rate.Inf
	}
	return &RateLimiter{
		users:   make(map[string]*userLimiter),
		perUser: limit,
		burst:   burst,
		now:     time.Now,
	}
}

// Allow reports whether an event from userID may be processed now.
func (rl *RateLimiter) Allow(userID string) bool {
	if rl.perUser == rate.Inf {
		return true
	}
	return rl.userLimiter(userID).Allow()
}

// userLimiter gets or creates the limiter for a user.
func (rl *RateLimiter) userLimiter(userID string) *rate.Limiter {
	now := rl.now()

	rl.mu.RLock()
	ul, exists := rl.users[userID]
	rl.mu.RUnlock()

	if exists {
		rl.mu.Lock()
		ul.lastSeen = now
		rl.mu.Unlock()
		return ul.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring write lock
	if ul, exists := rl.users[userID]; exists {
		ul.lastSeen = now
		return ul.limiter
	}

	ul = &userLimiter{
		limiter:  rate.NewLimiter(rl.perUser, rl.burst),
		lastSeen: now,
	}
	rl.users[userID] = ul
	return ul.limiter
}

// Prune forgets users idle for longer than idle and returns how many
// were removed.
func (rl *RateLimiter) Prune(idle time.Duration) int {
	cutoff := rl.now().Add(-idle)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for id, ul := range rl.users {
		if ul.lastSeen.Before(cutoff) {
			delete(rl.users, id)
			removed++
		}
	}
	return removed
}

// Tracked returns the number of users with a limiter.
func (rl *RateLimiter) Tracked() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.users)
}
