// cmd/api is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campushub/campus-events/internal/auth"
	"github.com/campushub/campus-events/internal/config"
	"github.com/campushub/campus-events/internal/database"
	"github.com/campushub/campus-events/internal/handler"
	"github.com/campushub/campus-events/internal/service"
	"github.com/campushub/campus-events/internal/store"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	setupLogging(cfg)

	// ── 1. Storage ────────────────────────────────────────────────────────
	var st store.Store
	switch cfg.Storage {
	case config.StoragePostgres:
		pool, err := database.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer pool.Close()
		if err := database.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
			log.Fatalf("migrations: %v", err)
		}
		slog.Info("connected to postgres")
		st = store.NewPostgres(pool, cfg.LockTimeout)
	case config.StorageMemory:
		slog.Warn("using in-memory storage, data will not survive restarts")
		st = store.NewMemory(cfg.LockTimeout)
	}

	// ── 2. Wire up layers ────────────────────────────────────────────────
	tokens := auth.NewTokenIssuer(cfg.JWTSecret)
	userSvc := service.NewUserService(st, tokens)
	eventSvc := service.NewEventService(st, st)
	regSvc := service.NewRegistrationService(st, st)
	analyticsSvc := service.NewAnalyticsService(st)
	h := handler.New(userSvc, eventSvc, regSvc, analyticsSvc, tokens)

	// Repair any registrations left dangling by an interrupted cascade.
	if n, err := eventSvc.SweepOrphanedRegistrations(ctx); err != nil {
		log.Fatalf("startup sweep: %v", err)
	} else if n > 0 {
		slog.Info("startup sweep complete", "removed", n)
	}

	// ── 3. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      h.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run in a background goroutine so we can listen for shutdown signals.
	go func() {
		slog.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}
	slog.Info("server stopped")
}

func setupLogging(cfg *config.Config) {
	var h slog.Handler
	if cfg.IsProduction() {
		h = slog.NewJSONHandler(os.Stdout, nil)
	} else {
		h = slog.NewTextHandler(os.Stdout, nil)
	}
	slog.SetDefault(slog.New(h))
}
