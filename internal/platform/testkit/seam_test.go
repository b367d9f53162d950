package testkit

import (
	"context"
	"errors"
	"testing"
	"time"
)

var (
	clockFn   = func() int64 { return 1 }
	batchSize = 10
)

func TestSwapRestoresFunc(t *testing.T) {
	t.Run("swapped", func(t *testing.T) {
		Swap(t, &clockFn, func() int64 { return 99 })
		if got := clockFn(); got != 99 {
			t.Fatalf("swap not applied, got %d", got)
		}
	})
	if got := clockFn(); got != 1 {
		t.Fatalf("swap not restored, got %d", got)
	}
}

func TestSwapRestoresValue(t *testing.T) {
	t.Run("swapped", func(t *testing.T) {
		Swap(t, &batchSize, 3)
		if batchSize != 3 {
			t.Fatalf("swap not applied, got %d", batchSize)
		}
	})
	if batchSize != 10 {
		t.Fatalf("swap not restored, got %d", batchSize)
	}
}

func TestClock(t *testing.T) {
	c := NewClock()
	if !c.Now().Equal(Epoch) {
		t.Fatalf("start = %v", c.Now())
	}

	c.Advance(time.Second)
	if err := c.Sleep(context.Background(), 250*time.Millisecond); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if got := c.Now().Sub(Epoch); got != 1250*time.Millisecond {
		t.Fatalf("elapsed = %v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep on done ctx = %v", err)
	}
	if s := c.Sleeps(); len(s) != 1 || s[0] != 250*time.Millisecond {
		t.Fatalf("sleeps = %v", s)
	}
}
