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
	"github.com/envoylog/envoylog/pkg/server"
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

	// init server
	srv := server.Configured(s, c)

	// parse flags
	lflag.Configure()
	if err := log.ConfigureFromFlags(); err != nil {
		panic(err)
	}
	slog.Debug("logger configured")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// If initialization inside lflag.Do failed, we wouldn't be here (panic).
	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
	}()

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
