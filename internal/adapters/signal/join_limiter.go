package signal

import (
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Parley/internal/core"
)

// JoinLimiter caps join_room attempts per connection over a sliding window.
type JoinLimiter struct {
	mu       sync.Mutex
	attempts map[core.SessionID][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
}

func NewJoinLimiter(limit int, window time.Duration) *JoinLimiter {
	return &JoinLimiter{
		attempts: make(map[core.SessionID][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

func (l *JoinLimiter) Allow(sid core.SessionID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	recent := slices.DeleteFunc(l.attempts[sid], func(at time.Time) bool { return !at.After(cutoff) })
	if len(recent) >= l.limit {
		l.attempts[sid] = recent
		return false
	}
	l.attempts[sid] = append(recent, now)
	return true
}

// Forget drops the window of a closed connection.
func (l *JoinLimiter) Forget(sid core.SessionID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, sid)
}
