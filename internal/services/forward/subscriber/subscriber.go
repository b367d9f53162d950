// Package subscriber feeds S3 event notifications from a NATS queue group into the forwarder
package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	perr "amplisend/internal/platform/errors"
	"amplisend/internal/platform/logger"
	"amplisend/internal/platform/metrics"
	pnet "amplisend/internal/platform/net"
	"amplisend/internal/services/forward/domain"

	"github.com/nats-io/nats.go"
)

// Notifier is the slice of the forwarder the subscriber drives
type Notifier interface {
	HandleNotification(ctx context.Context, msg []byte) (domain.Report, error)
}

// Config holds the connection and subscription settings
type Config struct {
	URL           string
	Subject       string
	Queue         string
	Name          string
	ReconnectWait time.Duration
	DrainTimeout  time.Duration
}

// Reply is published to msg.Reply for request/reply callers
type Reply struct {
	Report domain.Report `json:"report"`
	Error  *perr.Wire    `json:"error,omitempty"`
}

// Subscriber owns one NATS connection and one queue subscription
type Subscriber struct {
	cfg  Config
	fwd  Notifier
	log  *logger.Logger
	conn *nats.Conn
	sub  *nats.Subscription
	base context.Context

	respond func(m *nats.Msg, data []byte) error
}

// New returns an unconnected Subscriber
func New(cfg Config, fwd Notifier) *Subscriber {
	if cfg.Name == "" {
		cfg.Name = "amplisend-relay"
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	return &Subscriber{
		cfg:     cfg,
		fwd:     fwd,
		log:     logger.Named("nats"),
		base:    context.Background(),
		respond: func(m *nats.Msg, data []byte) error { return m.Respond(data) },
	}
}

// Run connects, subscribes and blocks until ctx is done, then drains in-flight
// messages before closing the connection
func (s *Subscriber) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

// Start connects and subscribes. Messages already being handled keep running
// after ctx is done; Stop drains them.
func (s *Subscriber) Start(ctx context.Context) error {
	s.base = context.WithoutCancel(ctx)

	conn, err := nats.Connect(s.cfg.URL,
		nats.Name(s.cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(s.cfg.ReconnectWait),
		nats.DrainTimeout(s.cfg.DrainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			s.log.Info().Str("url", c.ConnectedUrlRedacted()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "connect to nats at %s", s.cfg.URL)
	}

	sub, err := conn.QueueSubscribe(s.cfg.Subject, s.cfg.Queue, s.handle)
	if err != nil {
		conn.Close()
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "subscribe %s", s.cfg.Subject)
	}
	s.conn, s.sub = conn, sub
	s.log.Info().
		Str("subject", s.cfg.Subject).
		Str("queue", s.cfg.Queue).
		Msg("nats subscriber started")
	return nil
}

// Stop drains the subscription and closes the connection
func (s *Subscriber) Stop() error {
	if s.conn == nil {
		return nil
	}
	closed := make(chan struct{})
	s.conn.SetClosedHandler(func(*nats.Conn) { close(closed) })
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return perr.Wrap(err, perr.ErrorCodeUnavailable, "drain nats connection")
	}
	select {
	case <-closed:
	case <-time.After(s.cfg.DrainTimeout + time.Second):
		s.conn.Close()
	}
	s.log.Info().Msg("nats subscriber stopped")
	return nil
}

// handle runs one notification; NATS calls it sequentially per subscription
func (s *Subscriber) handle(m *nats.Msg) {
	metrics.NotificationsTotal.WithLabelValues("nats").Inc()

	ctx := s.base
	if id := m.Header.Get(nats.MsgIdHdr); id != "" {
		ctx = pnet.WithRequest(ctx, id)
	}
	log := logger.C(ctx)

	reply := s.process(ctx, m.Data)
	if reply.Error != nil {
		log.Error().
			Int("records", reply.Report.Records).
			Int("failed", reply.Report.Failed()).
			Str("code", reply.Error.Code.String()).
			Str("error", reply.Error.Message).
			Msg("notification failed")
	} else {
		log.Info().
			Int("records", reply.Report.Records).
			Int("ignored", reply.Report.Ignored).
			Msg("notification handled")
	}

	if m.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err == nil {
		err = s.respond(m, data)
	}
	if err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		log.Warn().Err(err).Msg("nats reply failed")
	}
}

func (s *Subscriber) process(ctx context.Context, data []byte) Reply {
	rep, err := s.fwd.HandleNotification(ctx, data)
	out := Reply{Report: rep}
	if err != nil {
		w := perr.WireFrom(err)
		if _, ok := perr.As(err); !ok || rep.Results != nil {
			// record failures are joined; keep the whole text
			w.Message = err.Error()
		}
		out.Error = &w
	}
	return out
}
