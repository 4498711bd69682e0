package handler

import (
	"context"
	"net/http"
	"os"
	"sync"

	"github.com/soft-duck/shorty/pkg/adapters/handler"
	"github.com/soft-duck/shorty/pkg/adapters/repository"
	"github.com/soft-duck/shorty/pkg/config"
	"github.com/soft-duck/shorty/pkg/core/domain"
	"github.com/soft-duck/shorty/pkg/core/services"
	"github.com/soft-duck/shorty/pkg/logger"
)

var (
	once    sync.Once
	mux     http.Handler
	initErr error
)

// setup builds the router on the first request, after the platform has set the environment.
func setup() {
	cfg, err := config.Load()
	if err != nil {
		initErr = err
		return
	}
	log := logger.New(cfg.LogLevel, "json", os.Stdout)

	// Note: On Vercel, db.sqlite is ephemeral unless DATABASE_URL points at Turso or Postgres.
	// There is no scheduler here; expired links are reclaimed through POST /api/v1/clean.
	repo, err := repository.Open(context.Background(), cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		initErr = err
		return
	}

	clock := domain.RealClock{}
	store := services.NewLinkStore(repo, services.NewRandomIDGenerator(cfg.IDLength), cfg.StoreOptions(), clock, log)
	mux = handler.NewRouter(cfg, store, clock, log)
}

// Handler is the entrypoint for Vercel
func Handler(w http.ResponseWriter, r *http.Request) {
	once.Do(setup)
	if initErr != nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	mux.ServeHTTP(w, r)
}
