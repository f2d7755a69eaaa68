// Package worker runs the try-on processing loop: sweep stuck jobs, claim
// the next queued one, run the image pipeline, persist the outcome. One
// process runs one single-threaded loop; scale-out is more processes
// against the same store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tryon/internal/domain"
	"tryon/internal/infra"
	"tryon/internal/joblog"
	"tryon/internal/storage"
	"tryon/internal/vision"
)

// Worker polls the job store and drives the image pipeline. All
// collaborators are injected; the worker holds no global state.
type Worker struct {
	Repo     domain.JobRepository
	Store    *storage.FileStore
	Pipeline *vision.Pipeline
	Logs     joblog.Stream
	Logger   infra.Logger

	PollInterval time.Duration
	JobTimeout   time.Duration
}

// Run loops until the context is cancelled. Claim failures and empty polls
// back off by the poll interval; job failures are recorded on the job and
// never abort the loop.
func (w *Worker) Run(ctx context.Context) error {
	w.Logger.Info().
		Dur("poll_interval", w.PollInterval).
		Dur("job_timeout", w.JobTimeout).
		Msg("worker: started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if swept, err := w.Repo.SweepStuck(ctx, w.JobTimeout); err != nil {
			w.Logger.Error().Err(err).Msg("worker: watchdog sweep failed")
		} else if swept > 0 {
			w.Logger.Warn().Int("count", swept).Msg("worker: watchdog recovered stuck jobs")
		}

		job, err := w.Repo.ClaimNext(ctx)
		if err != nil {
			if !errors.Is(err, domain.ErrNoJob) {
				w.Logger.Error().Err(err).Msg("worker: failed to claim job")
			}
			if !w.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}

		w.handleJob(ctx, job)
	}
}

// handleJob runs the pipeline for one claimed job. The claim transaction has
// already committed, so all CPU-bound work here happens outside any row lock.
func (w *Worker) handleJob(ctx context.Context, job *domain.Job) {
	logger := w.Logger.With().Str("job_id", job.ID).Int("attempt", job.Attempts).Logger()
	logger.Info().Msg("worker: picked job")
	w.jobLog(ctx, job.ID, fmt.Sprintf("processing started (attempt %d/%d)", job.Attempts, job.MaxAttempts))

	start := time.Now()

	personData, err := w.Store.Read(ctx, job.PersonImageKey)
	if err != nil {
		w.finishError(ctx, logger, job, domain.ErrCodeWorkerError, fmt.Sprintf("read person image: %v", err))
		return
	}
	garmentData, err := w.Store.Read(ctx, job.GarmentImageKey)
	if err != nil {
		w.finishError(ctx, logger, job, domain.ErrCodeWorkerError, fmt.Sprintf("read garment image: %v", err))
		return
	}

	result := w.Pipeline.Run(ctx, personData, garmentData, func(step string) {
		w.jobLog(ctx, job.ID, step)
	})
	if result.Failed() {
		w.finishError(ctx, logger, job, result.ErrorKind, result.Detail)
		return
	}

	resultKey := storage.ResultKey(job.ID, w.Pipeline.Codec.Ext())
	savedKey, err := w.Store.Write(ctx, resultKey, result.Image)
	if err != nil {
		w.finishError(ctx, logger, job, domain.ErrCodeWriteFailed, fmt.Sprintf("write result artifact: %v", err))
		return
	}

	if err := w.Repo.MarkDone(ctx, job.ID, savedKey); err != nil {
		logger.Error().Err(err).Msg("worker: mark done failed")
		return
	}
	elapsed := time.Since(start)
	w.jobLog(ctx, job.ID, fmt.Sprintf("done -> %s (%s)", savedKey, elapsed.Round(time.Millisecond)))
	logger.Info().Dur("elapsed", elapsed).Str("result_key", savedKey).Msg("worker: job done")
}

// finishError records a terminal error on the job. The loop never retries a
// job within one invocation; retries happen only through a later re-claim
// while attempts remain.
func (w *Worker) finishError(ctx context.Context, logger infra.Logger, job *domain.Job, code, detail string) {
	w.jobLog(ctx, job.ID, fmt.Sprintf("ERROR %s: %s", code, detail))
	logger.Error().Str("error_code", code).Str("detail", detail).Msg("worker: job failed")
	if err := w.Repo.MarkError(ctx, job.ID, code, detail); err != nil {
		logger.Error().Err(err).Msg("worker: mark error failed")
	}
}

func (w *Worker) jobLog(ctx context.Context, jobID, msg string) {
	if w.Logs == nil {
		return
	}
	if err := w.Logs.Append(ctx, jobID, msg); err != nil {
		w.Logger.Warn().Err(err).Str("job_id", jobID).Msg("worker: job log append failed")
	}
}

func (w *Worker) sleep(ctx context.Context) bool {
	interval := w.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
