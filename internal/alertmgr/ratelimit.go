package alertmgr

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// rateLimiter caps alert creation per (device, kind) pair with a fixed
// window. The window is tracked in process memory only; a restart resets
// the counts, which at worst re-admits a burst that the dedup window
// still absorbs.
type rateLimiter struct {
	log    zerolog.Logger
	limit  int
	window time.Duration
	mu     sync.Mutex
	events map[string][]time.Time // key: device|kind -> creation timestamps
	now    func() time.Time
}

func newRateLimiter(log zerolog.Logger, limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		log:    log.With().Str("component", "rate-limiter").Logger(),
		limit:  limit,
		window: window,
		events: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records an attempted creation for the key and reports whether it
// stays within the per-window limit.
func (l *rateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	// Prune events that fell out of the window
	timestamps := l.events[key]
	pruned := make([]time.Time, 0, len(timestamps)+1)
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}

	if len(pruned) >= l.limit {
		l.events[key] = pruned
		l.log.Warn().Str("key", key).Int("count", len(pruned)).Msg("alert creation rate limit hit")
		return false
	}

	l.events[key] = append(pruned, now)
	return true
}

// Cleanup removes keys with no events inside the window. Call periodically.
func (l *rateLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	for key, timestamps := range l.events {
		pruned := make([]time.Time, 0, len(timestamps))
		for _, ts := range timestamps {
			if ts.After(cutoff) {
				pruned = append(pruned, ts)
			}
		}
		if len(pruned) == 0 {
			delete(l.events, key)
		} else {
			l.events[key] = pruned
		}
	}
}
