// Package http provides the relay's ingestion and meta endpoints
package http

import (
	"errors"
	"io"
	stdhttp "net/http"
	"strings"
	"time"

	"amplisend/internal/core/version"
	perr "amplisend/internal/platform/errors"
	"amplisend/internal/platform/metrics"
	phttp "amplisend/internal/platform/net/http"
	"amplisend/internal/services/forward/domain"
)

// Deps are the handler dependencies
type Deps struct {
	Forwarder domain.ForwarderPort
	Build     version.BuildInfo
}

type handlers struct {
	deps    Deps
	started time.Time
}

// Register mounts the relay routes
func Register(r phttp.Router, d Deps) {
	h := &handlers{deps: d, started: time.Now()}

	r.Route("/v1", func(v1 phttp.Router) {
		v1.Post("/notifications", phttp.Handle(h.notifications))
		v1.Post("/events", phttp.Handle(h.events))
	})
	r.Get("/healthz", phttp.Handle(h.health))
	r.Get("/version", phttp.Handle(h.version))
	r.Handle("/metrics", metrics.Handler())
}

// HealthResponse is the liveness payload
type HealthResponse struct {
	OK      bool   `json:"ok"      example:"true"`
	Service string `json:"service" example:"amplisend-relay"`
	Started string `json:"started" example:"2026-10-19T13:00:00Z"`
	Uptime  int64  `json:"uptime"  example:"300"`
}

// @Summary Forward the objects named by an S3 event notification
// @Tags Forward
// @Accept json
// @Produce json
// @Param payload body notify.Message true "S3 event notification"
// @Success 200 {object} domain.Report "every record forwarded"
// @Success 207 {object} domain.Report "at least one record failed"
// @Failure 400 {object} phttp.Envelope "not a notification"
// @Router /v1/notifications [post]
func (h *handlers) notifications(r *stdhttp.Request) phttp.Response {
	metrics.NotificationsTotal.WithLabelValues("http").Inc()
	body, err := readBody(r)
	if err != nil {
		return phttp.Error(err)
	}
	rep, err := h.deps.Forwarder.HandleNotification(r.Context(), body)
	if err != nil && rep.Results == nil {
		// the message itself was rejected; no record ran
		return phttp.Error(err)
	}
	if rep.Failed() > 0 {
		return phttp.Status(stdhttp.StatusMultiStatus, rep)
	}
	return phttp.OK(rep)
}

// @Summary Forward NDJSON events from the request body
// @Tags Forward
// @Accept plain
// @Produce json
// @Param Content-Encoding header string false "gzip or deflate"
// @Success 200 {object} domain.Stats "run stats"
// @Failure 400 {object} phttp.Envelope "invalid event with on_invalid=abort"
// @Failure 422 {object} phttp.Envelope "unsupported encoding or corrupt compressed body"
// @Failure 502 {object} phttp.Envelope "ingestion endpoint rejected a batch"
// @Router /v1/events [post]
func (h *handlers) events(r *stdhttp.Request) phttp.Response {
	var (
		st  domain.Stats
		err error
	)
	switch enc := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
		st, err = h.deps.Forwarder.RunReader(r.Context(), r.Body)
	case "gzip", "x-gzip", "deflate":
		st, err = h.deps.Forwarder.RunCompressed(r.Context(), r.Body)
	default:
		err = perr.WithField(perr.InvalidArgf("unsupported Content-Encoding %q", enc), "Content-Encoding")
	}
	if err != nil {
		return phttp.Error(tooLarge(err))
	}
	return phttp.OK(st)
}

// @Summary Liveness probe
// @Tags Meta
// @Produce json
// @Success 200 {object} HealthResponse "ok"
// @Router /healthz [get]
func (h *handlers) health(_ *stdhttp.Request) phttp.Response {
	return phttp.OK(HealthResponse{
		OK:      true,
		Service: h.deps.Build.Service,
		Started: h.started.UTC().Format(time.RFC3339),
		Uptime:  int64(time.Since(h.started) / time.Second),
	})
}

// @Summary Build and version info
// @Tags Meta
// @Produce json
// @Success 200 {object} version.BuildInfo "ok"
// @Router /version [get]
func (h *handlers) version(_ *stdhttp.Request) phttp.Response {
	return phttp.OK(h.deps.Build)
}

func readBody(r *stdhttp.Request) ([]byte, error) {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, tooLarge(perr.Wrap(err, perr.ErrorCodeInvalidArgument, "read request body"))
	}
	return b, nil
}

// tooLarge turns a body cap hit, however deeply wrapped, into a plain invalid argument
func tooLarge(err error) error {
	var mbe *stdhttp.MaxBytesError
	if errors.As(err, &mbe) {
		return perr.WithField(perr.InvalidArgf("request body exceeds %d bytes", mbe.Limit), "body")
	}
	return err
}
