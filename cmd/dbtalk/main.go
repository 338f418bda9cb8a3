package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/dbtalk/dbtalk/internal/cli"
	"github.com/dbtalk/dbtalk/internal/config"
	"github.com/dbtalk/dbtalk/internal/nl2sql"
	"github.com/dbtalk/dbtalk/internal/observability"
)

func main() {
	flags, code, ok := cli.ParseFlags(os.Args[1:], os.Stderr)
	if !ok {
		os.Exit(code)
	}

	_ = godotenv.Load()
	cfg, err := config.LoadFromEnv("dbtalk")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stderr)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chain, err := nl2sql.Initialize(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize chain", slog.Any("error", err))
		os.Exit(1)
	}

	code = cli.Run(ctx, flags, cli.Options{
		Chain:       chain,
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		Interactive: term.IsTerminal(int(os.Stdin.Fd())),
	})
	if err := chain.Close(); err != nil {
		logger.Warn("failed to close chain", slog.Any("error", err))
	}
	stop()
	os.Exit(code)
}
