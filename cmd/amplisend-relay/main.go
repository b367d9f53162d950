// @title         amplisend relay
// @version       0.1.0
// @description   Forwards S3 event notifications and NDJSON event bodies to Amplitude

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"amplisend/internal/modkit"
	"amplisend/internal/modkit/module"
	"amplisend/internal/modkit/swaggerkit"
	"amplisend/internal/platform/config"
	"amplisend/internal/platform/logger"
	phttp "amplisend/internal/platform/net/http"
	"amplisend/internal/platform/net/middleware"

	"amplisend/internal/services/forward/docs"
	forwardmod "amplisend/internal/services/forward/module"
	"amplisend/internal/services/forward/subscriber"

	"golang.org/x/sync/errgroup"
)

func main() {
	root := config.New()
	relayCfg := root.Prefix("RELAY_") // RELAY_API_PORT, RELAY_NATS_*, ...

	l := logger.Get()

	m, err := forwardmod.New(
		modkit.Deps{Cfg: root, Log: l},
		forwardmod.WithServiceName("amplisend-relay"),
	)
	if err != nil {
		l.Fatal().Err(err).Msg("bad configuration")
	}

	srv := phttp.NewServer(relayCfg)
	r := srv.Router()
	r.Use(middleware.Defaults(middleware.CORSOptions{
		AllowedOrigins: relayCfg.MayCSV("CORS_ORIGINS", nil),
	})...)
	r.Use(middleware.BodyLimit(int64(relayCfg.MayInt("MAX_BODY_BYTES", 64<<20))))

	swaggerkit.Mount(r, relayCfg.MayBool("DOCS", true), docs.InstanceName)
	phttp.MountProfiler(r, "/debug", relayCfg.MayBool("PPROF", false))
	m.MountRoutes(r)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })

	if url := relayCfg.MayString("NATS_URL", ""); url != "" {
		sub := subscriber.New(subscriber.Config{
			URL:     url,
			Subject: relayCfg.MayString("NATS_SUBJECT", "amplisend.notifications"),
			Queue:   relayCfg.MayString("NATS_QUEUE", "amplisend"),
		}, module.MustPortsOf[forwardmod.Ports](m).Forwarder)
		g.Go(func() error { return sub.Run(gctx) })
	} else {
		l.Info().Msg("RELAY_NATS_URL unset; nats subscriber disabled")
	}

	if err := g.Wait(); err != nil {
		l.Fatal().Err(err).Msg("relay stopped")
	}
	l.Info().Msg("relay stopped")
}
