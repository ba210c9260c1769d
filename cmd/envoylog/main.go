package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/envoylog/envoylog/pkg/collector"
	"github.com/envoylog/envoylog/pkg/enlighten"
	"github.com/envoylog/envoylog/pkg/envoy"
	"github.com/envoylog/envoylog/pkg/log"
	"github.com/envoylog/envoylog/pkg/manifest"
	"github.com/envoylog/envoylog/pkg/names"
	"github.com/envoylog/envoylog/pkg/storage"

	"github.com/levenlabs/go-lflag"
)

func main() {
	// init packages
	s := storage.Configured()
	tokens := enlighten.Configured()
	e := envoy.Configured()
	n := names.Configured()
	m := manifest.Configured(s)
	c := collector.Configured(tokens, e, n, s, m)

	// parse flags
	lflag.Configure()
	if err := log.ConfigureFromFlags(); err != nil {
		panic(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	res, err := c.Run(ctx)
	if cerr := s.Close(); cerr != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", cerr))
	}
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "collection failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(
		ctx,
		"collection finished",
		slog.Int("reports", res.Reports),
		slog.Bool("changed", res.Changed),
		slog.Bool("newDay", res.NewDay),
	)
}
