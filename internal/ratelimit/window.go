package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	// Window is the span over which requests are counted
	Window = 60 * time.Second
	// MaxRequests is how many requests a client may make per Window
	MaxRequests = 100
)

// WindowLimiter counts requests per key over a sliding window.
// Rejected attempts are stamped and count toward the window, so a client
// retrying faster than the limit stays throttled until it backs off.
type WindowLimiter struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	window  time.Duration
	limit   int
	now     func() time.Time
}

type windowEntry struct {
	stamps []time.Time
	// reported is when a rejection for the key was last surfaced by Attempt
	reported time.Time
}

// NewWindowLimiter creates a limiter admitting MaxRequests per Window
func NewWindowLimiter() *WindowLimiter {
	return &WindowLimiter{
		entries: make(map[string]*windowEntry),
		window:  Window,
		limit:   MaxRequests,
		now:     time.Now,
	}
}

// SetClock replaces the wall clock, for tests
func (wl *WindowLimiter) SetClock(now func() time.Time) {
	wl.mu.Lock()
	defer wl.mu.Unlock()
	wl.now = now
}

// Allow records an attempt for key and reports whether it is admitted
func (wl *WindowLimiter) Allow(key string) bool {
	allowed, _ := wl.Attempt(key)
	return allowed
}

// Attempt is Allow that also reports whether a rejection is the first one for
// key within the window. Callers use it to note a throttled client once per
// window rather than once per rejected request.
func (wl *WindowLimiter) Attempt(key string) (allowed, firstRejection bool) {
	wl.mu.Lock()
	defer wl.mu.Unlock()

	now := wl.now()
	entry, ok := wl.entries[key]
	if !ok {
		entry = &windowEntry{}
		wl.entries[key] = entry
	}

	recent := wl.recent(entry.stamps, now)
	allowed = len(recent) < wl.limit

	// keep at most limit stamps; a rejected attempt pushes out the oldest
	if !allowed {
		recent = recent[1:]
		if entry.reported.IsZero() || now.Sub(entry.reported) >= wl.window {
			entry.reported = now
			firstRejection = true
		}
	}
	entry.stamps = append(recent, now)

	return allowed, firstRejection
}

// recent drops stamps that fell out of the window. Stamps are appended in
// clock order so the survivors are a suffix.
func (wl *WindowLimiter) recent(stamps []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-wl.window)
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}

// Prune forgets keys with no attempts inside the window
func (wl *WindowLimiter) Prune() {
	wl.mu.Lock()
	defer wl.mu.Unlock()

	now := wl.now()
	for key, entry := range wl.entries {
		entry.stamps = wl.recent(entry.stamps, now)
		if len(entry.stamps) == 0 {
			delete(wl.entries, key)
		}
	}
}

// Len returns the number of tracked keys
func (wl *WindowLimiter) Len() int {
	wl.mu.Lock()
	defer wl.mu.Unlock()
	return len(wl.entries)
}

// StartCleanupWorker prunes idle keys every interval until ctx is done
func (wl *WindowLimiter) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wl.Prune()
		}
	}
}
