// Command floodgate serves the protected messaging surface in one of two
// modes:
//
//	-mode=gateway  HTTP gateway (default)
//	-mode=stdio    tool-calling protocol server over stdin/stdout
//
// Both modes talk to the upstream envelope API through the scripting client
// and layer their own shield on top; the client's retry budget is zeroed so
// exactly one layer owns retries.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/prilive-com/floodgate/client"
	"github.com/prilive-com/floodgate/gateway"
	"github.com/prilive-com/floodgate/toolserver"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "floodgate:", err)
		os.Exit(1)
	}
}

func run() error {
	// Missing .env is fine, the environment may be set directly
	_ = godotenv.Load()

	mode := flag.String("mode", "gateway", "serving mode: gateway or stdio")
	flag.Parse()

	// In stdio mode stdout carries the protocol stream, so logs go to
	// stderr.
	logOut := os.Stdout
	if *mode == "stdio" {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	clientCfg, err := client.LoadConfig()
	if err != nil {
		return fmt.Errorf("load client config: %w", err)
	}
	upstream, err := client.NewFromConfig(*clientCfg,
		client.WithLogger(logger),
		client.WithMaxRetries(0),
	)
	if err != nil {
		return fmt.Errorf("create upstream client: %w", err)
	}
	defer upstream.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "gateway":
		cfg, err := gateway.LoadConfig()
		if err != nil {
			return fmt.Errorf("load gateway config: %w", err)
		}
		srv := gateway.NewServer(*cfg, upstream, gateway.WithLogger(logger))

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Start(ctx) })
		return g.Wait()

	case "stdio":
		logger.Info("tool server reading from stdin")
		srv := toolserver.NewServer(upstream, os.Stdin, os.Stdout,
			toolserver.WithLogger(logger))
		return srv.Run(ctx)

	default:
		return fmt.Errorf("unknown mode %q (want gateway or stdio)", *mode)
	}
}

func logLevel() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
