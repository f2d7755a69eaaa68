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
	"tryon/internal/infra"
	"tryon/internal/joblog"
	"tryon/internal/pose"
	"tryon/internal/storage"
	"tryon/internal/vision"
	"tryon/internal/worker"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	fileStore, err := storage.NewFileStore(storagePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	logs, closeLogs := newJobLogStream(ctx, cfg, logger, storagePath)
	defer closeLogs()

	poseClient, err := pose.NewClient(pose.Options{
		BaseURL:        cfg.PoseServiceURL,
		HTTPClient:     &http.Client{Timeout: cfg.PoseServiceTimeout},
		Logger:         &logger,
		RequestTimeout: cfg.PoseServiceTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure pose client")
	}

	pipeline := &vision.Pipeline{
		Locator: vision.Locator{Estimator: poseClient},
		Codec:   vision.CodecFor(cfg.ResultFormat),
		Logger:  logger,
	}

	w := &worker.Worker{
		Repo:         repo.NewJobRepository(pool),
		Store:        fileStore,
		Pipeline:     pipeline,
		Logs:         logs,
		Logger:       logger,
		PollInterval: cfg.WorkerPollInterval,
		JobTimeout:   cfg.WorkerJobTimeout,
	}

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// newJobLogStream prefers Redis when configured and falls back to log files
// under the storage directory.
func newJobLogStream(ctx context.Context, cfg *infra.Config, logger infra.Logger, storagePath string) (joblog.Stream, func()) {
	if cfg.RedisAddr != "" {
		stream, err := joblog.NewRedisStream(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logger.Warn().Err(err).Msg("job log: redis unavailable, falling back to files")
		} else {
			return stream, func() { _ = stream.Close() }
		}
	}
	stream, err := joblog.NewFileStream(filepath.Join(storagePath, "logs"))
	if err != nil {
		logger.Fatal().Err(err).Msg("job log: failed to configure file stream")
	}
	return stream, func() {}
}
