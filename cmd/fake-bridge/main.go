// ABOUTME: Minimal fake protocol bridge for E2E testing: speaks linewire and simulates a tiny world
// ABOUTME: Usage: fake-bridge [-addr localhost:25580] [-login-delay 500ms] [-reject-host blocked.example]
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"
)

func main() {
	addr := flag.String("addr", "localhost:25580", "listen address")
	loginDelay := flag.Duration("login-delay", 500*time.Millisecond, "delay between join and login event")
	rejectHost := flag.String("reject-host", "", "game host whose joins are refused")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	b := &bridge{
		loginDelay: *loginDelay,
		rejectHost: *rejectHost,
		logger:     logger,
	}
	if err := b.ListenAndServe(ctx, *addr); err != nil {
		logger.Error("bridge stopped", "error", err)
		os.Exit(1)
	}
}
