package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowIsPerSender(t *testing.T) {
	limiter := NewSenderRateLimiter(1, 2)

	assert.True(t, limiter.Allow("+15551234567"))
	assert.True(t, limiter.Allow("+15551234567"))
	assert.False(t, limiter.Allow("+15551234567"))

	// A different sender has its own bucket.
	assert.True(t, limiter.Allow("+15559876543"))
}

func TestPruneDropsIdleSenders(t *testing.T) {
	limiter := NewSenderRateLimiter(1, 1)

	limiter.Allow("+15551234567")
	limiter.Allow("+15559876543")

	limiter.mu.Lock()
	limiter.lastSeen["+15551234567"] = time.Now().Add(-2 * time.Hour)
	limiter.mu.Unlock()

	limiter.Prune(time.Hour)

	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	assert.NotContains(t, limiter.limiters, "+15551234567")
	assert.Contains(t, limiter.limiters, "+15559876543")
}
