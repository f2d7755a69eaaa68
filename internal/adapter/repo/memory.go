package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tryon/internal/domain"
)

// MemoryJobRepository is an in-memory domain.JobRepository. It backs unit
// tests and single-process development runs; the claim contract is enforced
// with a mutex instead of row locks.
type MemoryJobRepository struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
	seq  map[string]int
	next int

	// Now is the clock used for claim stamps and sweep cutoffs. Tests
	// override it to age jobs artificially.
	Now func() time.Time
}

// NewMemoryJobRepository creates an empty in-memory repository.
func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{
		jobs: make(map[string]*domain.Job),
		seq:  make(map[string]int),
		Now:  time.Now,
	}
}

// Create inserts a new queued job record.
func (r *MemoryJobRepository) Create(ctx context.Context, personKey, garmentKey string, maxAttempts int) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if maxAttempts < 1 {
		maxAttempts = domain.DefaultMaxAttempts
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.Now()
	job := &domain.Job{
		ID:              uuid.NewString(),
		Status:          domain.JobStatusQueued,
		PersonImageKey:  personKey,
		GarmentImageKey: garmentKey,
		MaxAttempts:     maxAttempts,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	r.jobs[job.ID] = job
	r.seq[job.ID] = r.next
	r.next++
	return copyJob(job), nil
}

// GetByID fetches a job by its identifier.
func (r *MemoryJobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyJob(job), nil
}

// List returns jobs ordered by creation time descending.
func (r *MemoryJobRepository) List(ctx context.Context, status *domain.JobStatus, limit int) ([]domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Job
	for _, job := range r.jobs {
		if status != nil && job.Status != *status {
			continue
		}
		out = append(out, *copyJob(job))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return r.seq[out[i].ID] > r.seq[out[j].ID]
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ClaimNext hands the oldest queued job to the caller under the repository
// mutex, so at most one caller wins any given job.
func (r *MemoryJobRepository) ClaimNext(ctx context.Context) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var candidate *domain.Job
	for _, job := range r.jobs {
		if job.Status != domain.JobStatusQueued {
			continue
		}
		if candidate == nil || olderThan(job, candidate, r.seq) {
			candidate = job
		}
	}
	if candidate == nil {
		return nil, domain.ErrNoJob
	}

	now := r.Now()
	candidate.Status = domain.JobStatusProcessing
	candidate.ProcessingStartedAt = &now
	candidate.Attempts++
	candidate.ErrorCode = nil
	candidate.ErrorMessage = nil
	candidate.UpdatedAt = now
	return copyJob(candidate), nil
}

// SweepStuck recovers processing jobs older than the timeout.
func (r *MemoryJobRepository) SweepStuck(ctx context.Context, timeout time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.Now()
	cutoff := now.Add(-timeout)
	touched := 0
	for _, job := range r.jobs {
		if job.Status != domain.JobStatusProcessing || job.ProcessingStartedAt == nil {
			continue
		}
		if !job.ProcessingStartedAt.Before(cutoff) {
			continue
		}
		if job.Attempts < job.MaxAttempts {
			job.Status = domain.JobStatusQueued
			job.ProcessingStartedAt = nil
		} else {
			code := domain.ErrCodeWorkerTimeout
			msg := "job stuck in processing past timeout with no attempts left"
			job.Status = domain.JobStatusError
			job.ErrorCode = &code
			job.ErrorMessage = &msg
			job.ProcessingStartedAt = nil
		}
		job.UpdatedAt = now
		touched++
	}
	return touched, nil
}

// MarkDone finishes a job successfully.
func (r *MemoryJobRepository) MarkDone(ctx context.Context, id, resultKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status != domain.JobStatusProcessing {
		return domain.ErrNotFound
	}
	job.Status = domain.JobStatusDone
	job.ResultImageKey = &resultKey
	job.ErrorCode = nil
	job.ErrorMessage = nil
	job.UpdatedAt = r.Now()
	return nil
}

// MarkError finishes a job with an error code.
func (r *MemoryJobRepository) MarkError(ctx context.Context, id, code, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status != domain.JobStatusProcessing {
		return domain.ErrNotFound
	}
	msg := domain.TruncateErrorMessage(message)
	job.Status = domain.JobStatusError
	job.ErrorCode = &code
	job.ErrorMessage = &msg
	job.UpdatedAt = r.Now()
	return nil
}

func olderThan(a, b *domain.Job, seq map[string]int) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return seq[a.ID] < seq[b.ID]
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func copyJob(job *domain.Job) *domain.Job {
	out := *job
	if job.ResultImageKey != nil {
		v := *job.ResultImageKey
		out.ResultImageKey = &v
	}
	if job.ErrorCode != nil {
		v := *job.ErrorCode
		out.ErrorCode = &v
	}
	if job.ErrorMessage != nil {
		v := *job.ErrorMessage
		out.ErrorMessage = &v
	}
	if job.ProcessingStartedAt != nil {
		v := *job.ProcessingStartedAt
		out.ProcessingStartedAt = &v
	}
	return &out
}

var _ domain.JobRepository = (*MemoryJobRepository)(nil)
