package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultLimit  = 100
	DefaultWindow = 60 * time.Second
)

type window struct {
	count   int
	resetAt time.Time
}

type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per identity in fixed windows. A window starts
// with the first request of an identity and resets once it has elapsed.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func New() *Limiter {
	return NewWithClock(time.Now)
}

func NewWithClock(now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{windows: make(map[string]*window), now: now}
}

func (l *Limiter) Allow(identity string, limit int, win time.Duration) bool {
	return l.Check(identity, limit, win).Allowed
}

func (l *Limiter) Check(identity string, limit int, win time.Duration) Decision {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if win <= 0 {
		win = DefaultWindow
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[identity]
	if !ok || !now.Before(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(win)}
		l.windows[identity] = w
		return Decision{Allowed: true, Limit: limit, Remaining: limit - 1, ResetAt: w.resetAt}
	}
	if w.count >= limit {
		return Decision{Allowed: false, Limit: limit, Remaining: 0, ResetAt: w.resetAt}
	}
	w.count++
	return Decision{Allowed: true, Limit: limit, Remaining: limit - w.count, ResetAt: w.resetAt}
}

// Sweep drops identities whose window has elapsed at now.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for id, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, id)
			removed++
		}
	}
	return removed
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Sweep(l.now())
		}
	}
}
