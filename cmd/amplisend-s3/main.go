package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"amplisend/internal/modkit"
	"amplisend/internal/modkit/module"
	"amplisend/internal/platform/config"
	"amplisend/internal/platform/logger"

	forwardmod "amplisend/internal/services/forward/module"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [notification]\n", os.Args[0])
		fmt.Fprintln(flag.CommandLine.Output(), "notification is an S3 event JSON document; stdin is read when omitted")
	}
	flag.Parse()
	if flag.NArg() > 1 {
		flag.Usage()
		os.Exit(2)
	}

	l := logger.Get()
	m, err := forwardmod.New(
		modkit.Deps{Cfg: config.New(), Log: l},
		forwardmod.WithServiceName("amplisend-s3"),
	)
	if err != nil {
		l.Fatal().Err(err).Msg("bad configuration")
	}
	fwd := module.MustPortsOf[forwardmod.Ports](m).Forwarder

	var msg []byte
	if flag.NArg() == 1 {
		msg = []byte(flag.Arg(0))
	} else if msg, err = io.ReadAll(os.Stdin); err != nil {
		l.Fatal().Err(err).Msg("read stdin")
	}

	rep, err := fwd.HandleNotification(context.Background(), msg)
	l.Info().
		Int("records", rep.Records).
		Int("ignored", rep.Ignored).
		Int("failed", rep.Failed()).
		Msg("notification handled")
	if err != nil {
		l.Error().Err(err).Msg("notification failed")
		os.Exit(1)
	}
}
