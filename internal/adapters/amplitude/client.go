// Package amplitude posts event batches to the Amplitude HTTP API
package amplitude

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"amplisend/internal/core/batch"
	perr "amplisend/internal/platform/errors"
	"amplisend/internal/platform/logger"
	"amplisend/internal/platform/metrics"
)

const (
	// DefaultEndpoint is the batch ingestion URL
	DefaultEndpoint      = "https://api.amplitude.com/httpapi"
	defaultTimeout       = 5 * time.Second
	defaultBatchesPerSec = 100
	defaultUA            = "amplisend"
	errBodyMax           = 512
)

// Options configures the Client
type Options struct {
	Endpoint            string
	APIKey              string
	UserAgent           string
	Timeout             time.Duration
	MaxBatchesPerSecond int
	HTTPClient          *http.Client // optional; Timeout is ignored when set
}

// Client sends batches one at a time and enforces the inter-send interval
type Client struct {
	http  *http.Client
	opts  Options
	rate  *RateState
	mu    sync.Mutex // serializes sends
	log   logger.Logger
	now   func() time.Time
	sent  int
	batch int
}

// NewClient creates a Client with defaults for anything unset
func NewClient(o Options) *Client {
	if o.Endpoint == "" {
		o.Endpoint = DefaultEndpoint
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxBatchesPerSecond <= 0 {
		o.MaxBatchesPerSecond = defaultBatchesPerSec
	}
	hc := o.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: o.Timeout}
	}
	return &Client{
		http: hc,
		opts: o,
		rate: NewRateState(o.MaxBatchesPerSecond),
		log:  *logger.Named("amplitude"),
		now:  time.Now,
	}
}

// Rate exposes the limiter state
func (c *Client) Rate() *RateState { return c.rate }

// Send posts b as one request. A status >= 400 or a transport failure is a
// transmission error and nothing is retried.
func (c *Client) Send(ctx context.Context, b batch.Batch) error {
	if len(b) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	waited, err := c.rate.Wait(ctx)
	metrics.RateLimitWait.Observe(waited.Seconds())
	if err != nil {
		return err
	}

	payload, err := json.Marshal(b)
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeJSON, "encode batch")
	}
	form := url.Values{}
	form.Set("api_key", c.opts.APIKey)
	form.Set("event", string(payload))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeConfiguration, "amplitude request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.opts.UserAgent)

	start := c.now()
	resp, err := c.http.Do(req)
	lat := c.now().Sub(start)
	metrics.SendDuration.Observe(lat.Seconds())
	if err != nil {
		metrics.BatchesTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return perr.Wrap(err, perr.ErrorCodeTransmission, "amplitude post")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		tail, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyMax))
		metrics.BatchesTotal.WithLabelValues(metrics.OutcomeError).Inc()
		c.log.Error().
			Int("status", resp.StatusCode).
			Int("events", len(b)).
			Dur("latency", lat).
			Msg("amplitude rejected batch")
		return perr.WithOp(
			perr.Transmissionf("amplitude status %d: %s", resp.StatusCode, strings.TrimSpace(string(tail))),
			"amplitude.send",
		)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.rate.Done(c.now())
	c.sent += len(b)
	c.batch++
	metrics.BatchesTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	c.log.Debug().
		Int("status", resp.StatusCode).
		Int("events", len(b)).
		Dur("latency", lat).
		Dur("rate_wait", waited).
		Msg("batch sent")
	return nil
}

// Totals reports events and batches sent successfully over the client's lifetime
func (c *Client) Totals() (events, batches int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent, c.batch
}
