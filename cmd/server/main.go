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

	"github.com/soft-duck/shorty/pkg/adapters/handler"
	"github.com/soft-duck/shorty/pkg/adapters/repository"
	"github.com/soft-duck/shorty/pkg/adapters/scheduler"
	"github.com/soft-duck/shorty/pkg/config"
	"github.com/soft-duck/shorty/pkg/core/domain"
	"github.com/soft-duck/shorty/pkg/core/services"
	"github.com/soft-duck/shorty/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	repo, err := repository.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	clock := domain.RealClock{}
	store := services.NewLinkStore(repo, services.NewRandomIDGenerator(cfg.IDLength), cfg.StoreOptions(), clock, log)

	cleanup, err := scheduler.NewCleanup(cfg.CleanupSchedule, store, clock, log)
	if err != nil {
		return err
	}
	cleanup.Start()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler.NewRouter(cfg, store, clock, log),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", server.Addr, "driver", cfg.Driver(), "public_url", cfg.PublicURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		_ = cleanup.Stop(context.Background())
		return err
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return cleanup.Stop(shutdownCtx)
}
