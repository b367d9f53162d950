// Package service drives the forwarding pipeline: decompress, reassemble lines,
// normalize, batch, send
package service

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"amplisend/internal/adapters/notify"
	"amplisend/internal/core/batch"
	"amplisend/internal/core/decompress"
	"amplisend/internal/core/event"
	"amplisend/internal/core/lines"
	perr "amplisend/internal/platform/errors"
	"amplisend/internal/platform/logger"
	"amplisend/internal/platform/metrics"
	"amplisend/internal/services/forward/domain"

	"github.com/google/uuid"
)

// Config holds pipeline tuning
type Config struct {
	BatchSize  int              // events per request; clamped to 1..10
	OnInvalid  domain.OnInvalid // abort|skip; empty means skip
	ChunkBytes int              // read size for streams; <=0 -> 64KiB
}

// Service implements domain.ForwarderPort. Runs are sequential inside; several
// runs may share one Service because the Sender serializes its own sends.
type Service struct {
	Blobs  domain.BlobStore
	Norm   domain.Normalizer
	Sender batch.Sender
	Cfg    Config

	now   func() time.Time
	newID func() string
}

// New constructs the service
func New(blobs domain.BlobStore, norm domain.Normalizer, sender batch.Sender, cfg Config) *Service {
	if norm == nil {
		panic("forward.Service requires a non nil Normalizer")
	}
	if sender == nil {
		panic("forward.Service requires a non nil Sender")
	}
	if cfg.OnInvalid == "" {
		cfg.OnInvalid = domain.OnInvalidSkip
	}
	if cfg.ChunkBytes <= 0 {
		cfg.ChunkBytes = decompress.DefaultChunkSize
	}
	cfg.BatchSize = batch.Clamp(cfg.BatchSize)
	return &Service{
		Blobs: blobs, Norm: norm, Sender: sender, Cfg: cfg,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// HandleNotification runs every object-store record of msg. A record's failure
// is reported and joined into the returned error; other records still run.
func (s *Service) HandleNotification(ctx context.Context, msg []byte) (domain.Report, error) {
	recs, err := notify.Parse(msg)
	if err != nil {
		return domain.Report{}, err
	}

	rep := domain.Report{Records: len(recs)}
	var errs []error
	for i, rec := range recs {
		if !rec.IsObjectCreated() {
			rep.Ignored++
			logger.C(ctx).Debug().Int("record", i).Str("source", rec.EventSource).Msg("record ignored")
			continue
		}

		runID := s.newID()
		rctx := logger.WithRun(ctx, runID)
		res := domain.RecordResult{RunID: runID}

		ref, err := refOf(rec)
		if err == nil {
			res.Ref = ref
			res.Stats, err = s.RunObject(rctx, ref)
		}
		if err != nil {
			res.Code = perr.CodeOf(err).String()
			res.Error = err.Error()
			errs = append(errs, fmt.Errorf("record %d (%s): %w", i, ref, err))
		}
		rep.Results = append(rep.Results, res)
	}
	return rep, errors.Join(errs...)
}

func refOf(rec notify.Record) (domain.ObjectRef, error) {
	if err := rec.Check(); err != nil {
		return domain.ObjectRef{}, err
	}
	key, err := rec.Key()
	if err != nil {
		return domain.ObjectRef{}, err
	}
	return domain.ObjectRef{Region: rec.AWSRegion, Bucket: rec.S3.Bucket.Name, Key: key}, nil
}

// RunObject streams one object through the pipeline
func (s *Service) RunObject(ctx context.Context, ref domain.ObjectRef) (domain.Stats, error) {
	ctx = s.ensureRun(ctx)
	log := logger.C(ctx)
	if s.Blobs == nil {
		return domain.Stats{}, perr.Configf("no blob store configured")
	}

	body, err := s.Blobs.Open(ctx, ref)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("object", metrics.OutcomeError).Inc()
		log.Error().Err(err).Str("object", ref.String()).Msg("open object failed")
		return domain.Stats{}, err
	}
	defer body.Close()

	var enc string
	if e, ok := body.(domain.Encoded); ok {
		enc = e.ContentEncoding()
	}
	log.Info().Str("object", ref.String()).Str("region", ref.Region).Str("encoding", enc).Msg("object run started")

	br := bufio.NewReaderSize(body, 4096)
	if domain.LooksCompressed(ref.Key, enc) || sniffGzip(br) {
		return s.runCompressed(ctx, "object", br)
	}
	return s.runPlain(ctx, "object", br)
}

// RunCompressed streams a gzip or raw deflate body through the pipeline
func (s *Service) RunCompressed(ctx context.Context, r io.Reader) (domain.Stats, error) {
	return s.runCompressed(s.ensureRun(ctx), "stream", r)
}

// RunReader streams uncompressed NDJSON from r through the pipeline
func (s *Service) RunReader(ctx context.Context, r io.Reader) (domain.Stats, error) {
	return s.runPlain(s.ensureRun(ctx), "stream", r)
}

// RunText processes an in-memory blob; no decompression or reassembly is needed
func (s *Service) RunText(ctx context.Context, text string) (domain.Stats, error) {
	ctx = s.ensureRun(ctx)
	r := s.newRun(ctx, "text")
	r.st.BytesIn = int64(len(text))
	r.st.BytesOut = r.st.BytesIn
	err := r.feed([]byte(text))
	return r.finish(err)
}

func (s *Service) runPlain(ctx context.Context, source string, src io.Reader) (domain.Stats, error) {
	cr := &readChunks{r: src, size: s.Cfg.ChunkBytes}
	r := s.newRun(ctx, source)
	err := r.stream(cr)
	r.st.BytesIn, r.st.BytesOut = cr.n, cr.n
	return r.finish(err)
}

func (s *Service) runCompressed(ctx context.Context, source string, src io.Reader) (domain.Stats, error) {
	r := s.newRun(ctx, source)
	ds, err := decompress.NewStream(src, decompress.WithChunkSize(s.Cfg.ChunkBytes))
	if err != nil {
		return r.finish(err)
	}
	defer ds.Close()

	err = r.stream(ds)
	dst := ds.Stats()
	r.st.BytesIn, r.st.BytesOut = dst.BytesIn, dst.BytesOut
	metrics.DecompressedBytesTotal.Add(float64(dst.BytesOut))
	return r.finish(err)
}

func (s *Service) ensureRun(ctx context.Context) context.Context {
	if logger.RunID(ctx) != "" {
		return ctx
	}
	return logger.WithRun(ctx, s.newID())
}

func sniffGzip(br *bufio.Reader) bool {
	head, _ := br.Peek(2)
	return len(head) == 2 && head[0] == 0x1f && head[1] == 0x8b
}

// chunkSource is satisfied by decompress.Stream and readChunks
type chunkSource interface {
	Next() ([]byte, error)
}

// readChunks adapts a plain reader to the chunk iterator shape
type readChunks struct {
	r    io.Reader
	size int
	n    int64
}

func (c *readChunks) Next() ([]byte, error) {
	buf := make([]byte, c.size)
	for {
		n, err := c.r.Read(buf)
		c.n += int64(n)
		if n > 0 {
			return buf[:n], nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, perr.Wrap(err, perr.ErrorCodeUnavailable, "read input")
		}
	}
}

// run is the state of one pipeline execution
type run struct {
	s      *Service
	ctx    context.Context
	source string
	b      *batch.Batcher
	st     domain.Stats
	lineNo int
	start  time.Time
}

func (s *Service) newRun(ctx context.Context, source string) *run {
	return &run{
		s:      s,
		ctx:    ctx,
		source: source,
		b:      batch.New(s.Sender, batch.WithSize(s.Cfg.BatchSize)),
		start:  s.now(),
	}
}

// stream pulls chunks until EOF; the next chunk is read only after the current
// chunk's lines are normalized and any full batch has been sent
func (r *run) stream(src chunkSource) error {
	var re lines.Reassembler
	for {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		chunk, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := r.feed(re.Push(chunk)); err != nil {
			return err
		}
	}
	return r.feed(re.Flush())
}

func (r *run) feed(avail []byte) error {
	for _, raw := range lines.Split(avail) {
		if err := r.line(raw); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) line(raw []byte) error {
	r.lineNo++
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	r.st.Lines++
	metrics.LinesTotal.Inc()

	evs, err := r.s.Norm.Expand(raw)
	if err != nil {
		if perr.Fatal(err) {
			return err
		}
		return r.invalid(err)
	}
	for _, ev := range evs {
		if ev[event.FieldEventType] == event.EventTypeIdentify {
			r.st.Identifies++
		}
		r.st.Events++
		metrics.EventsTotal.Inc()
		if err := r.b.Add(r.ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// invalid applies the OnInvalid policy; the line content is never logged
func (r *run) invalid(err error) error {
	reason := perr.CodeOf(err).String()
	var field string
	if e, ok := perr.As(err); ok {
		field = e.Field()
	}
	if r.s.Cfg.OnInvalid == domain.OnInvalidAbort {
		return perr.WithOp(err, fmt.Sprintf("line %d", r.lineNo))
	}
	r.st.Skipped++
	metrics.EventsSkippedTotal.WithLabelValues(reason).Inc()
	logger.C(r.ctx).Warn().
		Int("line", r.lineNo).
		Str("reason", reason).
		Str("field", field).
		Msg("invalid event skipped")
	return nil
}

// finish flushes the open batch when the run succeeded and logs the summary.
// A failed run drops its open batch: nothing more is sent after a fatal error.
func (r *run) finish(err error) (domain.Stats, error) {
	if err == nil {
		err = r.b.Flush(r.ctx)
	}
	r.st.Batches = r.b.Stats().Batches
	r.st.Elapsed = r.s.now().Sub(r.start)
	r.st.ElapsedMS = r.st.Elapsed.Milliseconds()
	metrics.RunsTotal.WithLabelValues(r.source, metrics.Outcome(err)).Inc()

	log := logger.C(r.ctx)
	evt := log.Info()
	if err != nil {
		evt = log.Error().Err(err).Str("code", perr.CodeOf(err).String())
	}
	evt.Str("source", r.source).
		Int("lines", r.st.Lines).
		Int("events", r.st.Events).
		Int("identifies", r.st.Identifies).
		Int("skipped", r.st.Skipped).
		Int("batches", r.st.Batches).
		Int64("bytes_in", r.st.BytesIn).
		Int64("bytes_out", r.st.BytesOut).
		Dur("elapsed", r.st.Elapsed).
		Msg("run finished")
	return r.st, err
}

// ParseOnInvalid maps a config value to a policy
func ParseOnInvalid(s string) (domain.OnInvalid, error) {
	switch domain.OnInvalid(strings.ToLower(strings.TrimSpace(s))) {
	case "", domain.OnInvalidSkip:
		return domain.OnInvalidSkip, nil
	case domain.OnInvalidAbort:
		return domain.OnInvalidAbort, nil
	}
	return "", perr.InvalidArgf("on_invalid must be abort or skip, got %q", s)
}
