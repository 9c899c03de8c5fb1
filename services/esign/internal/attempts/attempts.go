// Package attempts counts identity-verification attempts per signing token.
package attempts

import (
	"context"
	"strings"
	"sync"
	"time"
)

type Limiter interface {
	// Allow records one attempt for key and reports whether it is within the limit.
	Allow(ctx context.Context, key string) (bool, error)
}

type FixedWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	byKey  map[string]windowState
	now    func() time.Time
}

type windowState struct {
	start time.Time
	count int
}

func NewFixedWindow(limit int, window time.Duration) *FixedWindow {
	return &FixedWindow{
		limit:  limit,
		window: window,
		byKey:  map[string]windowState{},
		now:    time.Now,
	}
}

func (l *FixedWindow) Allow(_ context.Context, key string) (bool, error) {
	return l.AllowAt(key, l.now().UTC()), nil
}

func (l *FixedWindow) AllowAt(key string, now time.Time) bool {
	if l == nil || l.limit <= 0 {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cur := l.byKey[key]
	if cur.start.IsZero() || now.Sub(cur.start) >= l.window {
		l.byKey[key] = windowState{start: now, count: 1}
		return true
	}
	if cur.count >= l.limit {
		return false
	}
	cur.count++
	l.byKey[key] = cur
	return true
}

// Sweep forgets windows that ended before now.
func (l *FixedWindow) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, st := range l.byKey {
		if now.Sub(st.start) >= l.window {
			delete(l.byKey, k)
			n++
		}
	}
	return n
}
