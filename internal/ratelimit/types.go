package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// RetryAfter is the wait until the window closes, rounded up to whole seconds
// and never below one second. Zero for allowed results.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed {
		return 0
	}
	wait := r.Reset.Sub(now)
	if wait <= time.Second {
		return time.Second
	}
	return wait.Truncate(time.Second) + roundUp(wait%time.Second)
}

func roundUp(rest time.Duration) time.Duration {
	if rest > 0 {
		return time.Second
	}
	return 0
}

// Window is one fixed-window check: at most Limit hits per Size.
type Window struct {
	Limit int
	Size  time.Duration
	Now   time.Time
}

// index numbers the window containing Now.
func (w Window) index() int64 {
	return w.Now.Unix() / w.seconds()
}

// end is the instant the current window closes.
func (w Window) end() time.Time {
	return time.Unix((w.index()+1)*w.seconds(), 0).UTC()
}

func (w Window) seconds() int64 {
	if s := int64(w.Size / time.Second); s > 0 {
		return s
	}
	return 1
}

// result turns a post-increment count into a Result.
func (w Window) result(count int64) Result {
	if count > int64(w.Limit) {
		return Result{Reset: w.end()}
	}
	return Result{Allowed: true, Remaining: w.Limit - int(count), Reset: w.end()}
}

// Counter records one hit for key in w and reports whether it fits.
type Counter interface {
	Hit(ctx context.Context, key string, w Window) (Result, error)
}
