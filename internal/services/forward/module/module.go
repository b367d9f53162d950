// Package module wires the forwarding service from configuration
package module

import (
	"amplisend/internal/adapters/amplitude"
	"amplisend/internal/adapters/blob/s3store"
	"amplisend/internal/core/batch"
	"amplisend/internal/core/event"
	"amplisend/internal/core/version"
	"amplisend/internal/modkit"
	phttp "amplisend/internal/platform/net/http"
	"amplisend/internal/services/forward/domain"
	forwardhttp "amplisend/internal/services/forward/http"
	"amplisend/internal/services/forward/service"
)

// Ports exposed by the forward module
type Ports struct {
	Forwarder domain.ForwarderPort
}

// Option overrides one collaborator, mostly for tests
type Option func(*wiring)

type wiring struct {
	blobs  domain.BlobStore
	sender batch.Sender
	name   string
}

// WithBlobStore replaces the S3 store
func WithBlobStore(b domain.BlobStore) Option { return func(w *wiring) { w.blobs = b } }

// WithSender replaces the Amplitude client
func WithSender(s batch.Sender) Option { return func(w *wiring) { w.sender = s } }

// WithServiceName sets the name reported by /version and the outbound User-Agent
func WithServiceName(name string) Option { return func(w *wiring) { w.name = name } }

// Module implements the forward module
type Module struct {
	deps  modkit.Deps
	opts  Options
	name  string
	svc   *service.Service
	ports Ports
}

// New reads Options from deps.Cfg and wires normalizer, sender, blob store and service
func New(deps modkit.Deps, with ...Option) (*Module, error) {
	opts, err := FromConfig(deps.Cfg)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(deps, opts, with...), nil
}

// NewWithOptions wires the module from already resolved Options
func NewWithOptions(deps modkit.Deps, opts Options, with ...Option) *Module {
	w := wiring{name: "amplisend"}
	for _, o := range with {
		o(&w)
	}
	if w.sender == nil {
		w.sender = amplitude.NewClient(amplitude.Options{
			Endpoint:            opts.Endpoint,
			APIKey:              opts.APIKey,
			UserAgent:           version.UserAgent(w.name),
			Timeout:             opts.HTTPTimeout,
			MaxBatchesPerSecond: opts.MaxBatchesPerSecond,
		})
	}
	if w.blobs == nil {
		w.blobs = s3store.New(opts.S3)
	}

	norm := event.NewNormalizer([]byte(opts.HMACKey),
		event.WithMozlog(opts.Mozlog),
		event.WithIdentify(opts.Identify),
		event.WithSessionCoercion(opts.CoerceSessionID),
	)
	svc := service.New(w.blobs, norm, w.sender, service.Config{
		BatchSize:  opts.BatchSize,
		OnInvalid:  opts.OnInvalid,
		ChunkBytes: opts.ChunkBytes,
	})

	deps.Logger("forward").Info().
		Str("endpoint", opts.Endpoint).
		Int("batch_size", svc.Cfg.BatchSize).
		Int("max_batches_per_second", opts.MaxBatchesPerSecond).
		Str("on_invalid", string(svc.Cfg.OnInvalid)).
		Bool("mozlog", opts.Mozlog).
		Bool("identify", opts.Identify).
		Bool("coerce_session_id", opts.CoerceSessionID).
		Msg("forward module ready")

	return &Module{
		deps:  deps,
		opts:  opts,
		name:  w.name,
		svc:   svc,
		ports: Ports{Forwarder: svc},
	}
}

// Builder adapts New to modkit.Builder
func Builder(with ...Option) modkit.Builder {
	return func(d modkit.Deps) (modkit.Module, error) {
		m, err := New(d, with...)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// Name satisfies modkit.Module
func (m *Module) Name() string { return "forward" }

// Ports satisfies modkit.Module
func (m *Module) Ports() any { return m.ports }

// Options returns the resolved configuration
func (m *Module) Options() Options { return m.opts }

// MountRoutes mounts the ingestion and meta endpoints
func (m *Module) MountRoutes(r phttp.Router) {
	forwardhttp.Register(r, forwardhttp.Deps{
		Forwarder: m.svc,
		Build:     version.Info(m.name),
	})
}
