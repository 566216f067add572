package presale

import (
	"context"
	"sync"
	"time"
)

// Clock supplies the trusted current unix time in seconds.
type Clock interface {
	Now(ctx context.Context) (int64, error)
}

// SystemClock reads the local wall clock.
type SystemClock struct{}

// Now returns the local unix time.
func (SystemClock) Now(context.Context) (int64, error) {
	return time.Now().Unix(), nil
}

// FixedClock is a manually driven clock for tests and replays.
type FixedClock struct {
	mu  sync.Mutex
	now int64
}

// NewFixedClock creates a FixedClock at now.
func NewFixedClock(now int64) *FixedClock {
	return &FixedClock{now: now}
}

// Now returns the current fixed time.
func (c *FixedClock) Now(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now, nil
}

// Set moves the clock to now.
func (c *FixedClock) Set(now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Advance moves the clock forward by seconds.
func (c *FixedClock) Advance(seconds int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += seconds
}
