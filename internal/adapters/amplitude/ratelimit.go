package amplitude

import (
	"context"
	"sync"
	"time"
)

// RateState remembers when the last successful send completed and makes the
// next send wait out the rest of the minimum interval
type RateState struct {
	mu       sync.Mutex
	last     time.Time
	interval time.Duration
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

// NewRateState allows at most perSecond sends per second; perSecond < 1 disables waiting
func NewRateState(perSecond int) *RateState {
	var iv time.Duration
	if perSecond > 0 {
		iv = time.Second / time.Duration(perSecond)
	}
	return &RateState{interval: iv, now: time.Now, sleep: sleepCtx}
}

// Interval is the minimum gap between a completed send and the next start
func (r *RateState) Interval() time.Duration { return r.interval }

// Wait blocks until the interval since the last success has elapsed and
// returns how long it waited
func (r *RateState) Wait(ctx context.Context) (time.Duration, error) {
	r.mu.Lock()
	last := r.last
	r.mu.Unlock()

	if last.IsZero() || r.interval <= 0 {
		return 0, ctx.Err()
	}
	remain := r.interval - r.now().Sub(last)
	if remain <= 0 {
		return 0, ctx.Err()
	}
	return remain, r.sleep(ctx, remain)
}

// Done records a successful completion at t; an older t never moves the baseline back
func (r *RateState) Done(t time.Time) {
	r.mu.Lock()
	if t.After(r.last) {
		r.last = t
	}
	r.mu.Unlock()
}

// Last returns the completion time of the latest successful send
func (r *RateState) Last() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
