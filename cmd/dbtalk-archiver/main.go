package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dbtalk/dbtalk/internal/config"
	"github.com/dbtalk/dbtalk/internal/history/archive"
	historypostgres "github.com/dbtalk/dbtalk/internal/history/postgres"
	"github.com/dbtalk/dbtalk/internal/observability"
	s3store "github.com/dbtalk/dbtalk/internal/storage/s3"
)

func main() {
	once := flag.Bool("once", false, "archive a single batch and exit")
	list := flag.Bool("list", false, "list archive files and exit")
	querySQL := flag.String("query", "", "run read-only SQL over the archive (table dbtalk_run) and exit")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.LoadFromEnv("dbtalk-archiver")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stderr)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := s3store.New(ctx, cfg.ObjectStore)
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}
	svc := &archive.Service{
		Store:  store,
		Config: archive.Config{Interval: cfg.Archive.Interval, BatchSize: cfg.Archive.BatchSize},
		Logger: logger,
	}

	switch {
	case *list:
		files, err := svc.List(ctx)
		if err != nil {
			logger.Error("failed to list archive", slog.Any("error", err))
			os.Exit(1)
		}
		for _, file := range files {
			fmt.Printf("%s\t%d\n", file.Key, file.Size)
		}
		return
	case *querySQL != "":
		result, err := svc.Query(ctx, *querySQL, cfg.Query.RowLimit)
		if err != nil {
			logger.Error("archive query failed", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Println(result.Render())
		return
	}

	if !cfg.History.Enabled() {
		logger.Error("DBTALK_HISTORY_DSN is required")
		os.Exit(1)
	}
	db, err := historypostgres.Open(ctx, cfg.History.DSN, cfg.History.MaxOpenConns)
	if err != nil {
		logger.Error("failed to open history db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	svc.Source = historypostgres.NewRepository(db)

	if *once {
		summary, err := svc.RunOnce(ctx)
		if err != nil {
			logger.Error("archive cycle failed", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("archive cycle completed", slog.Any("summary", summary))
		return
	}

	logger.Info("history archiver started", slog.Duration("interval", cfg.Archive.Interval))
	if err := svc.Run(ctx); err != nil {
		logger.Error("history archiver failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("history archiver stopped")
}
