// Package batch groups normalized events into bounded batches and hands each
// full batch to a Sender
package batch

import (
	"context"

	"amplisend/internal/core/event"
)

// MaxSize is the largest batch the ingestion endpoint accepts in one request
const MaxSize = 10

// Batch is an ordered group of at most MaxSize events
type Batch []event.Event

// Sender transmits one batch; it must not retain b after returning
type Sender interface {
	Send(ctx context.Context, b Batch) error
}

// SenderFunc adapts a function to Sender
type SenderFunc func(ctx context.Context, b Batch) error

// Send calls f
func (f SenderFunc) Send(ctx context.Context, b Batch) error { return f(ctx, b) }

// Stats counts what went through a Batcher
type Stats struct {
	Added   int // events accepted by Add
	Sent    int // events in successfully sent batches
	Batches int // successful sends
	Failed  int // failed sends; their events are dropped
}

// Option tunes a Batcher
type Option func(*Batcher)

// WithSize sets the batch capacity, clamped to 1..MaxSize
func WithSize(n int) Option {
	return func(b *Batcher) { b.size = Clamp(n) }
}

// Clamp bounds n to a usable batch size
func Clamp(n int) int {
	switch {
	case n < 1:
		return 1
	case n > MaxSize:
		return MaxSize
	}
	return n
}

// Batcher holds one open batch and sends synchronously. Not safe for concurrent use.
type Batcher struct {
	sender Sender
	size   int
	open   Batch
	stats  Stats
}

// New returns a Batcher that sends through s
func New(s Sender, opts ...Option) *Batcher {
	b := &Batcher{sender: s, size: MaxSize}
	for _, o := range opts {
		o(b)
	}
	b.open = make(Batch, 0, b.size)
	return b
}

// Add appends ev and sends the open batch once it is full
func (b *Batcher) Add(ctx context.Context, ev event.Event) error {
	b.open = append(b.open, ev)
	b.stats.Added++
	if len(b.open) < b.size {
		return nil
	}
	return b.send(ctx)
}

// Flush sends any pending events; it never sends an empty batch
func (b *Batcher) Flush(ctx context.Context) error {
	if len(b.open) == 0 {
		return nil
	}
	return b.send(ctx)
}

// Len is the number of events in the open batch
func (b *Batcher) Len() int { return len(b.open) }

// Stats returns a snapshot of the counters
func (b *Batcher) Stats() Stats { return b.stats }

func (b *Batcher) send(ctx context.Context) error {
	out := b.open
	b.open = make(Batch, 0, b.size)

	if err := b.sender.Send(ctx, out); err != nil {
		b.stats.Failed++
		return err
	}
	b.stats.Batches++
	b.stats.Sent += len(out)
	return nil
}
