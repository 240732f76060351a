package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"tenderhub/db"
	"tenderhub/db/memdb"
	"tenderhub/db/migrations"
	"tenderhub/internal/closer"
	"tenderhub/internal/config"
	"tenderhub/internal/handlers"
	"tenderhub/internal/services"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		slog.Error("cannot load config", "error", err)
		os.Exit(1)
	}
	logger := newLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStorage(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	tenders := services.NewTenderService(store)
	bids := services.NewBidService(store)
	analytics := services.NewAnalyticsService(store)
	h := handlers.NewHandler(tenders, bids, analytics, logger, cfg.RequestTimeout)

	if cfg.CloserSchedule != "" {
		c := closer.New(tenders, cfg.CloserSchedule, logger)
		if err := c.Start(ctx); err != nil {
			return err
		}
		defer c.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.ServerAddress, "storage", cfg.StorageDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStorage подключается к PostgreSQL и применяет миграции,
// либо поднимает хранилище в памяти.
func openStorage(cfg config.Config, logger *slog.Logger) (services.Storage, func(), error) {
	if cfg.StorageDriver == config.DriverMemory {
		logger.Warn("using in-memory storage, data is lost on restart")
		return memdb.New(), func() {}, nil
	}

	dbConn, err := sqlx.Connect("postgres", cfg.PostgresConn)
	if err != nil {
		return nil, nil, errors.Wrap(err, "connect to postgres")
	}
	if err := migrations.Run(dbConn.DB); err != nil {
		dbConn.Close()
		return nil, nil, err
	}
	return db.NewStorage(dbConn), func() { dbConn.Close() }, nil
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	lvl, _ := cfg.Level()
	opts := &slog.HandlerOptions{Level: lvl}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
