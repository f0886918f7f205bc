// Command server runs the puzzle exchange HTTP API.
//
// @title        Puzzle Post API
// @version      1.0
// @description  Exchange jigsaw puzzles: list, request, approve and chat about them.
// @BasePath     /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/sfreeley/puzzle-post/internal/config"
	httpapi "github.com/sfreeley/puzzle-post/internal/http"
	"github.com/sfreeley/puzzle-post/internal/observability"
	"github.com/sfreeley/puzzle-post/internal/repo"
	"github.com/sfreeley/puzzle-post/internal/storage"
	"github.com/sfreeley/puzzle-post/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	shutdownTimeout = 15 * time.Second
	purgeInterval   = time.Hour
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run() error {
	// .env is optional; real environment wins.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	observability.SetupLogging(os.Stderr, cfg.Log.Level, cfg.Log.Pretty)
	gin.SetMode(cfg.Server.GinMode)
	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled: setup failed")
		shutdownOTel = func(context.Context) error { return nil }
	}

	db, err := repo.OpenSQLite(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}
	store, err := storage.NewLocalStore(cfg.Storage.UploadDir, cfg.Storage.UploadBaseURL, cfg.Storage.MaxUploadBytes)
	if err != nil {
		return err
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, db, store, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
	}

	go sysutil.RunEvery(ctx, purgeInterval, func(ctx context.Context) {
		n, err := repo.PurgeExpiredIdempotency(ctx, db, time.Now().UTC())
		if err != nil {
			log.Warn().Err(err).Msg("idempotency purge failed")
			return
		}
		if n > 0 {
			log.Debug().Int64("purged", n).Msg("idempotency records purged")
		}
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", ver).
			Str("db", cfg.Storage.DBPath).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("stopped")
	return nil
}
