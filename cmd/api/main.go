// Package main is the entry point for a trip core process. Its sole
// responsibility is wiring dependencies together and starting the server:
// one dispatcher, one ledger, one trip state machine, and, for passenger
// processes, one location change detector. No business logic belongs here.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver for database/sql
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/markromolecule/lakbai-core/internal/backend"
	"github.com/markromolecule/lakbai-core/internal/config"
	"github.com/markromolecule/lakbai-core/internal/detector"
	"github.com/markromolecule/lakbai-core/internal/domain"
	"github.com/markromolecule/lakbai-core/internal/handler"
	"github.com/markromolecule/lakbai-core/internal/ledger"
	"github.com/markromolecule/lakbai-core/internal/middleware"
	"github.com/markromolecule/lakbai-core/internal/notify"
	"github.com/markromolecule/lakbai-core/internal/repo"
	"github.com/markromolecule/lakbai-core/internal/trip"
	"github.com/markromolecule/lakbai-core/migrations"
)

func main() {
	// --- Config -----------------------------------------------------------
	// .env is optional; real deployments set variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// --- Logger -----------------------------------------------------------
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// --- Stores -----------------------------------------------------------
	// Trip and earnings state is volatile by default. Setting DATABASE_URL
	// swaps in the Postgres stores; the services never know the difference.
	var (
		tripStore     repo.TripStore     = repo.NewMemoryTripStore()
		earningsStore repo.EarningsStore = repo.NewMemoryEarningsStore()
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create database pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := pool.Ping(context.Background()); err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}

		if err := migrate(cfg.DatabaseURL); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("database connection established")

		tripStore = repo.NewPGTripStore(pool)
		earningsStore = repo.NewPGEarningsStore(pool)
	}

	// --- Core services ----------------------------------------------------
	dispatcher := notify.NewDispatcher(cfg.Role,
		notify.NewSlogNotifier(logger),
		notify.NewWriterAlerter(os.Stderr),
		logger,
	)
	ledgerSvc := ledger.NewService(earningsStore, dispatcher, logger)
	tripSvc := trip.NewService(tripStore, ledgerSvc, dispatcher, logger)
	backendClient := backend.NewClient(cfg.BackendBaseURL, nil, logger)

	// Only passenger processes poll for location changes.
	if cfg.Role == domain.RolePassenger {
		det := detector.New(backendClient, dispatcher, cfg.PollInterval, logger)
		det.Start(cfg.RouteID)
		defer det.Stop()
	}

	// --- Router -----------------------------------------------------------
	// Middleware is applied in order: RequestID → RealIP → Logger →
	// Recoverer → CORS → body size limit.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(1 << 20))

	srv := handler.NewServer(tripSvc, ledgerSvc, dispatcher)
	r.Group(srv.Routes)

	// --- HTTP Server ------------------------------------------------------
	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown: wait for an OS signal, then give in-flight
	// requests up to 15 seconds to complete.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", httpSrv.Addr, "role", cfg.Role)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// migrate applies all pending migrations using the embedded SQL files.
// goose needs database/sql, not a pgx pool, so it opens its own connection.
func migrate(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return err
	}
	_, err = provider.Up(context.Background())
	return err
}
