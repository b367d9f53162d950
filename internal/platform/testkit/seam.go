package testkit

import (
	"context"
	"sync"
	"testing"
	"time"
)

// Swap points target at replacement until t finishes
func Swap[T any](t *testing.T, target *T, replacement T) {
	t.Helper()
	prev := *target
	*target = replacement
	t.Cleanup(func() { *target = prev })
}

// Epoch is where every Clock starts
var Epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// Clock is a manual clock for code that takes now/sleep seams. Sleep records
// the requested duration and advances time by it instead of blocking.
type Clock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
}

// NewClock returns a Clock at Epoch
func NewClock() *Clock { return &Clock{t: Epoch} }

// Now is the current fake time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves time forward by d
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Sleep matches func(context.Context, time.Duration) error; it fails only when
// ctx is already done
func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	c.mu.Unlock()
	return nil
}

// Sleeps returns a copy of every duration passed to Sleep
func (c *Clock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}
