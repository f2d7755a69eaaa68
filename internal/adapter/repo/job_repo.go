package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tryon/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL.
//
// ClaimNext relies on FOR UPDATE SKIP LOCKED so concurrent workers never
// block on each other's candidate row; ordering is therefore FIFO-biased
// rather than strict. SetUseCASFallback switches to a guarded-update claim
// for deployments whose store cannot express row-skipping locks.
type JobRepositoryPG struct {
	pool        *pgxpool.Pool
	useCAS      bool
	casAttempts int
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool, casAttempts: 3}
}

// SetUseCASFallback forces the compare-and-set claiming strategy.
func (r *JobRepositoryPG) SetUseCASFallback(on bool) {
	r.useCAS = on
}

const jobColumns = `id, status, person_image_key, garment_image_key, result_image_key,
	error_code, error_message, attempts, max_attempts, processing_started_at, created_at, updated_at`

// Create inserts a new queued job record.
func (r *JobRepositoryPG) Create(ctx context.Context, personKey, garmentKey string, maxAttempts int) (*domain.Job, error) {
	if maxAttempts < 1 {
		maxAttempts = domain.DefaultMaxAttempts
	}
	query := `
INSERT INTO tryon_jobs (person_image_key, garment_image_key, status, max_attempts)
VALUES ($1, $2, 'queued', $3)
RETURNING ` + jobColumns + `;
`
	row := r.pool.QueryRow(ctx, query, personKey, garmentKey, maxAttempts)
	return scanJob(row)
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM tryon_jobs WHERE id = $1;`
	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// List returns jobs ordered by creation time descending, optionally filtered
// by status.
func (r *JobRepositoryPG) List(ctx context.Context, status *domain.JobStatus, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + jobColumns + ` FROM tryon_jobs`
	args := []any{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d;`, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ClaimNext atomically hands the oldest queued job to the caller.
func (r *JobRepositoryPG) ClaimNext(ctx context.Context) (*domain.Job, error) {
	if r.useCAS {
		return r.claimNextCAS(ctx)
	}
	query := `
WITH next_job AS (
    SELECT id
    FROM tryon_jobs
    WHERE status = 'queued'
    ORDER BY created_at ASC
    FOR UPDATE SKIP LOCKED
    LIMIT 1
)
UPDATE tryon_jobs j
SET status = 'processing',
    processing_started_at = now(),
    attempts = j.attempts + 1,
    error_code = NULL,
    error_message = NULL,
    updated_at = now()
FROM next_job
WHERE j.id = next_job.id
RETURNING ` + qualifiedJobColumns("j") + `;
`
	job, err := scanJob(r.pool.QueryRow(ctx, query))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoJob
		}
		return nil, err
	}
	return job, nil
}

// claimNextCAS is the fallback claiming strategy for stores without
// non-blocking row locks: pick the oldest queued id, then take it with a
// status-guarded update. A concurrent claimer can win the same candidate, in
// which case the guard makes the update a no-op and we move to the next
// candidate. At-most-once attempt semantics hold; only throughput suffers.
func (r *JobRepositoryPG) claimNextCAS(ctx context.Context) (*domain.Job, error) {
	for i := 0; i < r.casAttempts; i++ {
		var id string
		selectQuery := `
SELECT id FROM tryon_jobs
WHERE status = 'queued'
ORDER BY created_at ASC
LIMIT 1 OFFSET $1;
`
		err := r.pool.QueryRow(ctx, selectQuery, i).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, domain.ErrNoJob
			}
			return nil, err
		}

		updateQuery := `
UPDATE tryon_jobs
SET status = 'processing',
    processing_started_at = now(),
    attempts = attempts + 1,
    error_code = NULL,
    error_message = NULL,
    updated_at = now()
WHERE id = $1 AND status = 'queued'
RETURNING ` + jobColumns + `;
`
		job, err := scanJob(r.pool.QueryRow(ctx, updateQuery, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// Lost the race for this candidate, try the next one.
				continue
			}
			return nil, err
		}
		return job, nil
	}
	return nil, domain.ErrNoJob
}

// SweepStuck recovers jobs stuck in processing past the timeout: requeue
// while attempts remain, otherwise fail with WORKER_TIMEOUT.
func (r *JobRepositoryPG) SweepStuck(ctx context.Context, timeout time.Duration) (int, error) {
	cutoffSeconds := int(timeout.Seconds())

	requeueQuery := `
UPDATE tryon_jobs
SET status = 'queued',
    processing_started_at = NULL,
    updated_at = now()
WHERE status = 'processing'
  AND processing_started_at IS NOT NULL
  AND processing_started_at < now() - make_interval(secs => $1)
  AND attempts < max_attempts;
`
	requeued, err := r.pool.Exec(ctx, requeueQuery, cutoffSeconds)
	if err != nil {
		return 0, fmt.Errorf("sweep requeue: %w", err)
	}

	failQuery := `
UPDATE tryon_jobs
SET status = 'error',
    error_code = $2,
    error_message = 'job stuck in processing past timeout with no attempts left',
    processing_started_at = NULL,
    updated_at = now()
WHERE status = 'processing'
  AND processing_started_at IS NOT NULL
  AND processing_started_at < now() - make_interval(secs => $1)
  AND attempts >= max_attempts;
`
	failed, err := r.pool.Exec(ctx, failQuery, cutoffSeconds, domain.ErrCodeWorkerTimeout)
	if err != nil {
		return 0, fmt.Errorf("sweep fail: %w", err)
	}

	return int(requeued.RowsAffected() + failed.RowsAffected()), nil
}

// MarkDone finishes a job successfully and records its result artifact key.
func (r *JobRepositoryPG) MarkDone(ctx context.Context, id, resultKey string) error {
	query := `
UPDATE tryon_jobs
SET status = 'done',
    result_image_key = $2,
    error_code = NULL,
    error_message = NULL,
    updated_at = now()
WHERE id = $1 AND status = 'processing';
`
	tag, err := r.pool.Exec(ctx, query, id, resultKey)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkError finishes a job with a stable error code and truncated message.
func (r *JobRepositoryPG) MarkError(ctx context.Context, id, code, message string) error {
	query := `
UPDATE tryon_jobs
SET status = 'error',
    error_code = $2,
    error_message = $3,
    updated_at = now()
WHERE id = $1 AND status = 'processing';
`
	tag, err := r.pool.Exec(ctx, query, id, code, domain.TruncateErrorMessage(message))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func qualifiedJobColumns(alias string) string {
	return alias + `.id, ` + alias + `.status, ` + alias + `.person_image_key, ` + alias + `.garment_image_key, ` +
		alias + `.result_image_key, ` + alias + `.error_code, ` + alias + `.error_message, ` + alias + `.attempts, ` +
		alias + `.max_attempts, ` + alias + `.processing_started_at, ` + alias + `.created_at, ` + alias + `.updated_at`
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.Status,
		&job.PersonImageKey,
		&job.GarmentImageKey,
		&job.ResultImageKey,
		&job.ErrorCode,
		&job.ErrorMessage,
		&job.Attempts,
		&job.MaxAttempts,
		&job.ProcessingStartedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
