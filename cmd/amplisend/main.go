package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"amplisend/internal/modkit"
	"amplisend/internal/modkit/module"
	"amplisend/internal/platform/config"
	"amplisend/internal/platform/logger"

	forwardmod "amplisend/internal/services/forward/module"
	"amplisend/internal/services/forward/service"
)

func main() {
	var (
		fOnInvalid = flag.String("on-invalid", "", "abort | skip; overrides AMPLISEND_ON_INVALID")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-on-invalid abort|skip] [events]\n", os.Args[0])
		fmt.Fprintln(flag.CommandLine.Output(), "events is newline-delimited JSON; stdin is read when omitted")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() > 1 {
		flag.Usage()
		os.Exit(2)
	}

	l := logger.Get()
	deps := modkit.Deps{Cfg: config.New(), Log: l}

	opts, err := forwardmod.FromConfig(deps.Cfg)
	if err != nil {
		l.Fatal().Err(err).Msg("bad configuration")
	}
	if *fOnInvalid != "" {
		p, err := service.ParseOnInvalid(*fOnInvalid)
		if err != nil {
			l.Fatal().Err(err).Msg("bad -on-invalid")
		}
		opts.OnInvalid = p
	}

	m := forwardmod.NewWithOptions(deps, opts, forwardmod.WithServiceName("amplisend"))
	fwd := module.MustPortsOf[forwardmod.Ports](m).Forwarder

	ctx := context.Background()
	if flag.NArg() == 1 {
		_, err = fwd.RunText(ctx, flag.Arg(0))
	} else {
		_, err = fwd.RunReader(ctx, os.Stdin)
	}
	if err != nil {
		l.Fatal().Err(err).Msg("run failed")
	}
}
