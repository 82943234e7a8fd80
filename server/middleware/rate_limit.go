package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SenderRateLimiter throttles inbound webhook traffic per sender, so one
// noisy conversational party cannot starve the rest.
type SenderRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time

	perSecond rate.Limit
	burst     int
}

// NewSenderRateLimiter creates a limiter allowing perSecond events with the
// given burst for each distinct sender.
func NewSenderRateLimiter(perSecond float64, burst int) *SenderRateLimiter {
	return &SenderRateLimiter{
		limiters:  map[string]*rate.Limiter{},
		lastSeen:  map[string]time.Time{},
		perSecond: rate.Limit(perSecond),
		burst:     burst,
	}
}

// Allow reports whether the sender may proceed.
func (l *SenderRateLimiter) Allow(sender string) bool {
	l.mu.Lock()

	limiter, ok := l.limiters[sender]
	if !ok {
		limiter = rate.NewLimiter(l.perSecond, l.burst)
		l.limiters[sender] = limiter
	}
	l.lastSeen[sender] = time.Now()

	l.mu.Unlock()

	return limiter.Allow()
}

// Prune drops limiters idle longer than maxIdle, bounding memory across
// long-lived processes with churning sender populations.
func (l *SenderRateLimiter) Prune(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)

	for sender, seen := range l.lastSeen {
		if seen.Before(cutoff) {
			delete(l.limiters, sender)
			delete(l.lastSeen, sender)
		}
	}
}
