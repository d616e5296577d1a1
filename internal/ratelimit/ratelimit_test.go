package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirk1998/stocktalk/pkg/errors"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newWindowLimiter() (*WindowLimiter, *testClock) {
	clock := &testClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	wl := NewWindowLimiter()
	wl.SetClock(clock.Now)
	return wl, clock
}

func TestWindowLimiter_HundredthPassesHundredFirstFails(t *testing.T) {
	wl, clock := newWindowLimiter()

	for i := 0; i < MaxRequests; i++ {
		require.True(t, wl.Allow("1.2.3.4"), "request %d", i+1)
	}

	clock.Advance(time.Second)
	assert.False(t, wl.Allow("1.2.3.4"))

	// other clients are unaffected
	assert.True(t, wl.Allow("5.6.7.8"))
}

func TestWindowLimiter_ResumesWhenWindowRolls(t *testing.T) {
	wl, clock := newWindowLimiter()

	for i := 0; i < MaxRequests; i++ {
		require.True(t, wl.Allow("client"))
	}
	clock.Advance(30 * time.Second)
	assert.False(t, wl.Allow("client"))

	clock.Advance(30 * time.Second)
	assert.True(t, wl.Allow("client"))
}

func TestWindowLimiter_RejectionsCountButStayBounded(t *testing.T) {
	wl, clock := newWindowLimiter()

	for i := 0; i < MaxRequests; i++ {
		require.True(t, wl.Allow("client"))
	}

	// ten retries a second, well over the limit
	for i := 0; i < 200; i++ {
		clock.Advance(100 * time.Millisecond)
		assert.False(t, wl.Allow("client"), "retry %d", i)
	}

	wl.mu.Lock()
	n := len(wl.entries["client"].stamps)
	wl.mu.Unlock()
	assert.Equal(t, MaxRequests, n)

	// the admitted stamps have aged out, but the retries have not
	clock.Advance(45 * time.Second)
	assert.False(t, wl.Allow("client"))

	clock.Advance(Window)
	assert.True(t, wl.Allow("client"))
}

func TestWindowLimiter_SlowRetriesAreAdmittedAsStampsAge(t *testing.T) {
	wl, clock := newWindowLimiter()

	for i := 0; i < MaxRequests; i++ {
		require.True(t, wl.Allow("client"))
	}

	clock.Advance(time.Second)
	assert.False(t, wl.Allow("client"))

	// one attempt a second is under the limit, so admission resumes once the
	// first burst falls out of the window
	clock.Advance(Window - time.Second)
	assert.True(t, wl.Allow("client"))
}

func TestWindowLimiter_FirstRejectionOncePerWindow(t *testing.T) {
	wl, clock := newWindowLimiter()

	for i := 0; i < MaxRequests; i++ {
		allowed, first := wl.Attempt("client")
		require.True(t, allowed)
		require.False(t, first)
	}

	allowed, first := wl.Attempt("client")
	assert.False(t, allowed)
	assert.True(t, first)

	for i := 0; i < 150; i++ {
		clock.Advance(100 * time.Millisecond)
		allowed, first = wl.Attempt("client")
		assert.False(t, allowed)
		assert.False(t, first, "retry %d", i)
	}

	// still throttled a window after the first rejection, which is surfaced again
	clock.Advance(Window - 15*time.Second)
	allowed, first = wl.Attempt("client")
	assert.False(t, allowed)
	assert.True(t, first)

	// another client is reported independently
	for i := 0; i < MaxRequests; i++ {
		wl.Attempt("other")
	}
	_, first = wl.Attempt("other")
	assert.True(t, first)
}

func TestWindowLimiter_Prune(t *testing.T) {
	wl, clock := newWindowLimiter()

	wl.Allow("a")
	clock.Advance(40 * time.Second)
	wl.Allow("b")
	clock.Advance(30 * time.Second)

	wl.Prune()
	assert.Equal(t, 1, wl.Len())

	clock.Advance(Window)
	wl.Prune()
	assert.Equal(t, 0, wl.Len())
}

func TestWindowLimiter_ConcurrentAccess(t *testing.T) {
	wl, _ := newWindowLimiter()

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 300; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if wl.Allow("shared") {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(MaxRequests), admitted.Load())
}

func TestWindowLimiter_StartCleanupWorker(t *testing.T) {
	wl, clock := newWindowLimiter()
	wl.Allow("stale")
	clock.Advance(2 * Window)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		wl.StartCleanupWorker(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return wl.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestRateLimiter_BurstThenThrottle(t *testing.T) {
	rl := NewRateLimiter(10, 5)

	for i := 0; i < 5; i++ {
		require.NoError(t, rl.CheckLimit("login:alice"), "attempt %d", i+1)
	}
	assert.ErrorIs(t, rl.CheckLimit("login:alice"), errors.ErrRateLimitExceeded)
	assert.NoError(t, rl.CheckLimit("login:bob"))
}

func TestRateLimiter_CleanupDropsFullBuckets(t *testing.T) {
	rl := NewRateLimiter(10, 5)

	for i := 0; i < 3; i++ {
		rl.GetLimiter(fmt.Sprintf("login:idle%d", i))
	}
	rl.Allow("login:busy")

	rl.Cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Len(t, rl.limiters, 1)
	assert.Contains(t, rl.limiters, "login:busy")
}
