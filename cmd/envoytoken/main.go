package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/envoylog/envoylog/pkg/enlighten"
	"github.com/envoylog/envoylog/pkg/log"

	"github.com/levenlabs/go-lflag"
)

// envoytoken logs into Enlighten, mints a fresh local API token and prints
// it. The token is also written to -token-file unless
// -persist-refreshed-token=false.
func main() {
	store := enlighten.Configured()

	lflag.Configure()
	if err := log.ConfigureFromFlags(); err != nil {
		panic(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	token, err := store.Refresh(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to obtain token", slog.Any("error", err))
		os.Exit(1)
	}
	fmt.Println(token)
}
