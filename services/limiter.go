package services

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterTTL         = 10 * time.Minute
	limiterPrunePeriod = time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// senderLimiter is a token bucket per sender. A nil *senderLimiter allows everything.
type senderLimiter struct {
	mu        sync.Mutex
	entries   map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	lastPrune time.Time
}

func newSenderLimiter(perSecond float64, burst int) *senderLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &senderLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

func (l *senderLimiter) Allow(userID string, now time.Time) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastPrune) > limiterPrunePeriod {
		l.prune(now)
	}
	entry, ok := l.entries[userID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[userID] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *senderLimiter) prune(now time.Time) {
	cutoff := now.Add(-limiterTTL)
	for userID, entry := range l.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(l.entries, userID)
		}
	}
	l.lastPrune = now
}
