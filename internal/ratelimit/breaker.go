package ratelimit

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// breaker keeps redis out of the request path for a cool-down after a failure.
type breaker struct {
	mu       sync.Mutex
	cooldown time.Duration
	until    time.Time
}

func (b *breaker) open(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return now.Before(b.until)
}

func (b *breaker) trip(err error, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now.Before(b.until) {
		return
	}
	b.until = now.Add(b.cooldown)
	log.WithError(err).WithField("cooldown", b.cooldown).Warn("ratelimit: redis unavailable, using memory counters")
}
