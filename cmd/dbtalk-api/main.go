package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/dbtalk/dbtalk/internal/api"
	"github.com/dbtalk/dbtalk/internal/config"
	"github.com/dbtalk/dbtalk/internal/history/archive"
	"github.com/dbtalk/dbtalk/internal/nl2sql"
	"github.com/dbtalk/dbtalk/internal/observability"
	s3store "github.com/dbtalk/dbtalk/internal/storage/s3"
)

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

func main() {
	_ = godotenv.Load()
	cfg, err := config.LoadFromEnv("dbtalk-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chain, err := nl2sql.Initialize(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize chain", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = chain.Close() }()

	deps := api.Dependencies{
		Logger:            logger,
		Chain:             chain,
		History:           chain.History(),
		DependencyTimeout: time.Second,
	}
	checks := []api.ReadinessCheck{api.CheckPing("database", chain.Ping)}
	if checker, ok := chain.History().(healthChecker); ok {
		checks = append(checks, api.CheckPing("history", checker.HealthCheck))
	}
	deps.Readiness = api.CombineReadinessChecks(checks...)

	var archiver *archive.Service
	if cfg.Archive.Enabled {
		source, ok := chain.History().(archive.Source)
		if !ok {
			logger.Error("archive enabled but run history does not support archiving")
			os.Exit(1)
		}
		store, err := s3store.New(ctx, cfg.ObjectStore)
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		archiver = &archive.Service{
			Source: source,
			Store:  store,
			Config: archive.Config{Interval: cfg.Archive.Interval, BatchSize: cfg.Archive.BatchSize},
			Logger: logger,
		}
		deps.Archive = archiver
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		logger.Info("shutting down api server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			_ = server.Close()
			return err
		}
		return nil
	})
	if archiver != nil {
		group.Go(func() error {
			logger.Info("history archiver started", slog.Duration("interval", cfg.Archive.Interval))
			return archiver.Run(groupCtx)
		})
	}

	if err := group.Wait(); err != nil {
		logger.Error("api server failed", slog.Any("error", err))
		os.Exit(1)
	}
}
