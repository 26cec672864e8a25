package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

//go:generate mockgen -destination=mocks/mock_counter.go -package=mock_ratelimit butce/internal/middleware/ratelimit Counter

// ErrCounterUnavailable reports that the counting mechanism itself is missing
// or misconfigured, as opposed to a transient failure.
var ErrCounterUnavailable = errors.New("rate limit counter unavailable")

// Counter is an atomic increment-with-expiry primitive. Increment adds one hit
// to key inside the current window and reports whether the key is still
// within limit.
type Counter interface {
	Increment(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type windowState struct {
	start time.Time
	count int
	ttl   time.Duration
}

// MemoryCounter is an in-process fixed window Counter. Entries whose window
// has ended are swept periodically.
type MemoryCounter struct {
	mu           sync.Mutex
	windows      map[string]*windowState
	now          func() time.Time
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

// NewMemoryCounter starts a counter with a background sweep every
// cleanupInterval. Non-positive intervals default to five minutes.
func NewMemoryCounter(cleanupInterval time.Duration) *MemoryCounter {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	c := &MemoryCounter{
		windows:     make(map[string]*windowState),
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	go c.startCleanup(cleanupInterval)
	return c
}

func (c *MemoryCounter) Increment(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	w, exists := c.windows[key]
	if !exists || !now.Before(w.start.Add(w.ttl)) {
		c.windows[key] = &windowState{start: now, count: 1, ttl: window}
		return 1 <= limit, nil
	}

	w.count++
	return w.count <= limit, nil
}

func (c *MemoryCounter) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanupExpired()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *MemoryCounter) cleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, w := range c.windows {
		if !now.Before(w.start.Add(w.ttl)) {
			delete(c.windows, key)
			removed++
		}
	}
	return removed
}

// ActiveKeys returns the number of currently tracked keys
func (c *MemoryCounter) ActiveKeys() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}

// Stop shuts down the cleanup goroutine
func (c *MemoryCounter) Stop() {
	c.shutdownOnce.Do(func() {
		close(c.stopCleanup)
	})
}
