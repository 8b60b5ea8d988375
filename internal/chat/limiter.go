package chat

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/decidr/decidr-backend/internal/events"
)

// EventLimiter throttles inbound socket events per user with a token bucket.
// Traffic-generating events (send_message, typing_start, join_group) consume
// a token; the rest pass freely.
type EventLimiter struct {
	mu      sync.Mutex
	buckets map[string]*userBucket
	rps     rate.Limit
	burst   int
}

type userBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewEventLimiter builds a limiter allowing rps events per second with the
// given burst per user. Idle buckets are evicted in the background.
func NewEventLimiter(rps float64, burst int) *EventLimiter {
	l := &EventLimiter{
		buckets: make(map[string]*userBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
	go l.cleanup()
	return l
}

// Allow reports whether the user may emit another throttled event now.
func (l *EventLimiter) Allow(userID string) bool {
	l.mu.Lock()
	b, ok := l.buckets[userID]
	if !ok {
		b = &userBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[userID] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()
	return b.limiter.Allow()
}

func (l *EventLimiter) cleanup() {
	for range time.Tick(time.Minute) {
		l.mu.Lock()
		for id, b := range l.buckets {
			if time.Since(b.lastSeen) > 3*time.Minute {
				delete(l.buckets, id)
			}
		}
		l.mu.Unlock()
	}
}

// throttled reports whether the event consumes a rate-limit token.
func throttled(event string) bool {
	switch event {
	case events.InSendMessage, events.InTypingStart, events.InJoinGroup:
		return true
	}
	return false
}
