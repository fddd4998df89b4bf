// Package server initializes and runs the backup coordination service: it
// wires the registry, job coordinator, credential broker and download log
// behind the HTTP API, runs migrations, and handles graceful shutdown.
package server

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

	"github.com/sparkleops/dbdistrib/internal/logging"
	"github.com/sparkleops/dbdistrib/internal/server/auth"
	"github.com/sparkleops/dbdistrib/internal/server/config"
	"github.com/sparkleops/dbdistrib/internal/server/httpapi"
	"github.com/sparkleops/dbdistrib/internal/server/repositories/repomanager"
	"github.com/sparkleops/dbdistrib/internal/server/services"
	"github.com/sparkleops/dbdistrib/internal/server/storage"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	router     http.Handler
	stopRouter func()
}

func NewApp(cfg *config.Config) (*App, error) {
	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	broker := storage.NewBroker(storage.Options{
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		Bucket:       cfg.S3Bucket,
		Region:       cfg.S3Region,
		BaseEndpoint: cfg.S3BaseEndpoint,
	})

	registry := services.NewRegistryService(db, repos)
	jobs := services.NewJobService(db, repos, registry, broker, cfg)
	downloads := services.NewDownloadService(db, repos)

	router, stopRouter := httpapi.NewRouter(httpapi.RouterDeps{
		DB:        db,
		Config:    cfg,
		Logger:    logger,
		Human:     auth.NewJWTAuthenticator([]byte(cfg.JWTSecret)),
		Runner:    auth.NewRunnerAuthenticator(cfg.RunnerToken),
		Storage:   broker,
		Registry:  registry,
		Jobs:      jobs,
		Downloads: downloads,
	})

	return &App{config: cfg, logger: logger, db: db, router: router, stopRouter: stopRouter}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app", "addr", app.config.EndpointAddr)

	app.initSignalHandler(cancelFunc)

	srv := &http.Server{
		Addr:              app.config.EndpointAddr,
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.logger.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	app.stopRouter()
	return app.db.Close()
}
