// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/Shivanand-hulikatti/fitreserve/internal/auth"
	"github.com/Shivanand-hulikatti/fitreserve/internal/clock"
	"github.com/Shivanand-hulikatti/fitreserve/internal/config"
	"github.com/Shivanand-hulikatti/fitreserve/internal/database"
	"github.com/Shivanand-hulikatti/fitreserve/internal/handler"
	"github.com/Shivanand-hulikatti/fitreserve/internal/logger"
	"github.com/Shivanand-hulikatti/fitreserve/internal/repository"
	"github.com/Shivanand-hulikatti/fitreserve/internal/service"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.IsDevelopment())

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx := context.Background()

	// ── 1. Open the store ─────────────────────────────────────────────────
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Info().Str("driver", cfg.DBDriver).Msg("store ready")

	// ── 2. Wire up layers ────────────────────────────────────────────────
	clk := clock.System()
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL, clk.Now)
	authSvc := service.NewAuthService(store, tokens, cfg.BcryptCost, clk, log)
	courseSvc := service.NewCourseService(store, clk, log)
	reservationSvc := service.NewReservationService(store, clk, cfg.CancellationWindow, log)

	if cfg.AdminEmail != "" {
		if _, err := authSvc.EnsureAdmin(ctx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	h := handler.New(authSvc, courseSvc, reservationSvc, log)

	// ── 3. Build the router ───────────────────────────────────────────────
	router := handler.NewRouter(h, store, handler.RouterConfig{AllowedOrigins: cfg.CORSAllowedOrigins}, log)

	// ── 4. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (repository.Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		pool, err := database.NewPool(ctx, database.PoolConfig{
			DSN:      cfg.PostgresDSN(),
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
			Attempts: cfg.DBConnectAttempts,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		return repository.NewPostgresStore(pool), nil
	case config.DriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		return repository.NewSQLiteStore(db), nil
	case config.DriverMemory:
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return repository.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}
