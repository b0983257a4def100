package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/storyforge/storyforge-api/internal/api"
	"github.com/storyforge/storyforge-api/internal/config"
	"github.com/storyforge/storyforge-api/internal/generation"
	"github.com/storyforge/storyforge-api/internal/platform/gemini"
	"github.com/storyforge/storyforge-api/internal/platform/logger"
	"github.com/storyforge/storyforge-api/internal/platform/postgres"
	"github.com/storyforge/storyforge-api/internal/scheduler"
	"github.com/storyforge/storyforge-api/internal/service"
	"github.com/storyforge/storyforge-api/internal/service/auth"
	"github.com/storyforge/storyforge-api/internal/ws"
	"github.com/storyforge/storyforge-api/migrations"
)

// application holds the assembled dependency graph.
type application struct {
	config    *config.Config
	logger    *slog.Logger
	db        *sql.DB
	router    http.Handler
	hub       *ws.Hub
	scheduler *scheduler.Scheduler
}

// initializeApp loads configuration and wires every component: database,
// stores, services, executor registry, scheduler, notification hub, and
// the HTTP router.
func initializeApp() (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"scheduler_workers", cfg.Scheduler.WorkerCount,
		"llm_stub", cfg.LLM.UseStub)

	db, err := setupDatabase(cfg, log)
	if err != nil {
		return nil, err
	}

	if err := runMigrations(db, log); err != nil {
		return nil, err
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}

	taskStore := postgres.NewPostgresTaskStore(db)
	ledgerStore := postgres.NewPostgresLedgerStore(db)
	accountStore := postgres.NewPostgresAccountStore(db)

	hub := ws.NewHub(jwtService, log)

	taskService := service.NewTaskService(db, taskStore, ledgerStore, cfg.Credits, hub)
	accountService := service.NewAccountService(db, accountStore, ledgerStore,
		auth.NewBcryptHasher(), cfg.Credits.SignupBonus)

	registry := generation.NewRegistry()
	if cfg.LLM.UseStub {
		log.Warn("using stub executors, no content will be generated")
		gemini.StubGenerator{}.RegisterAll(registry)
	} else {
		generator, err := gemini.NewGenerator(context.Background(), log, cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini generator: %w", err)
		}
		generator.RegisterAll(registry)
	}

	sched := scheduler.New(cfg.Scheduler, taskStore, registry, taskService, hub, log)

	router := api.NewRouter(accountService, taskService, jwtService, hub)

	return &application{
		config:    cfg,
		logger:    log,
		db:        db,
		router:    router,
		hub:       hub,
		scheduler: sched,
	}, nil
}

// run starts the scheduler and the HTTP server, then blocks until a
// shutdown signal arrives. Shutdown order: HTTP server first (stop
// admitting), then the scheduler (finish in-flight tasks), then the hub.
func (app *application) run() error {
	app.scheduler.Start()

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.router,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", "port", app.config.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case sig := <-shutdownCh:
		app.logger.Info("shutdown signal received", "signal", sig)
	case err := <-serverErr:
		app.logger.Error("server failed", "error", err)
		app.cleanup()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("server shutdown failed", "error", err)
	}

	app.cleanup()
	app.logger.Info("server shutdown completed")
	return nil
}

// cleanup stops background components and closes the database.
func (app *application) cleanup() {
	app.scheduler.Stop()
	app.hub.Close()
	if err := app.db.Close(); err != nil {
		app.logger.Error("failed to close database", "error", err)
	}
}

// setupDatabase opens the connection pool and verifies connectivity.
func setupDatabase(cfg *config.Config, log *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("database connection established")
	return db, nil
}

// runMigrations applies the embedded goose migrations.
func runMigrations(db *sql.DB, log *slog.Logger) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.Info("database migrations applied")
	return nil
}
