package domain

import (
	"context"
	"io"

	"amplisend/internal/core/event"
)

// ForwarderPort is what the module exposes to transports (HTTP, NATS, CLI)
type ForwarderPort interface {
	HandleNotification(ctx context.Context, msg []byte) (Report, error)
	RunObject(ctx context.Context, ref ObjectRef) (Stats, error)
	RunText(ctx context.Context, text string) (Stats, error)
	RunReader(ctx context.Context, r io.Reader) (Stats, error)
	RunCompressed(ctx context.Context, r io.Reader) (Stats, error)
}

// BlobStore opens objects for streaming reads
type BlobStore interface {
	Open(ctx context.Context, ref ObjectRef) (io.ReadCloser, error)
}

// Encoded is implemented by blob bodies that know their content encoding
type Encoded interface {
	ContentEncoding() string
}

// Normalizer turns one input line into the outbound events for it, in send order
type Normalizer interface {
	Expand(line []byte) ([]event.Event, error)
}
