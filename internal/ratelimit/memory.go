package ratelimit

import (
	"context"
	"sync"
)

// Idle members are swept once this many counters exist.
const sweepThreshold = 1024

type slot struct {
	window int64
	hits   int64
}

// MemoryCounter keeps per-process counters. It is the default backend and the
// fallback while redis is unreachable.
type MemoryCounter struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// NewMemoryCounter returns an empty counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{slots: make(map[string]*slot)}
}

// Hit implements Counter. A rejected hit is not counted.
func (c *MemoryCounter) Hit(_ context.Context, key string, w Window) (Result, error) {
	if w.Limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	idx := w.index()

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.slots) >= sweepThreshold {
		for k, s := range c.slots {
			if s.window != idx {
				delete(c.slots, k)
			}
		}
	}
	s, ok := c.slots[key]
	if !ok || s.window != idx {
		s = &slot{window: idx}
		c.slots[key] = s
	}
	if s.hits >= int64(w.Limit) {
		return w.result(s.hits + 1), nil
	}
	s.hits++
	return w.result(s.hits), nil
}
