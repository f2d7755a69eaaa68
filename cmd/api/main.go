package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"tryon/internal/adapter/repo"
	"tryon/internal/http/handlers"
	httpapi "tryon/internal/http/httpapi"
	"tryon/internal/infra"
	"tryon/internal/joblog"
	"tryon/internal/storage"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to connect database")
	}
	defer pool.Close()

	fileStore, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure storage")
	}

	logs, closeLogs := newJobLogStream(ctx, cfg, logger)
	defer closeLogs()

	app := handlers.NewApp(
		cfg,
		logger,
		repo.NewJobRepository(pool),
		repo.NewApiKeyRepository(pool),
		fileStore,
		logs,
	)
	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: failed to shutdown server")
	}
	logger.Info().Msg("api: stopped")
}

// newJobLogStream prefers Redis when configured and falls back to log files
// under the storage directory.
func newJobLogStream(ctx context.Context, cfg *infra.Config, logger infra.Logger) (joblog.Stream, func()) {
	if cfg.RedisAddr != "" {
		stream, err := joblog.NewRedisStream(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logger.Warn().Err(err).Msg("job log: redis unavailable, falling back to files")
		} else {
			return stream, func() { _ = stream.Close() }
		}
	}
	stream, err := joblog.NewFileStream(filepath.Join(cfg.StoragePath, "logs"))
	if err != nil {
		logger.Fatal().Err(err).Msg("job log: failed to configure file stream")
	}
	return stream, func() {}
}
