package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tryon/internal/domain"
)

func TestMemoryClaimIsExclusive(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryJobRepository()

	const jobs = 40
	for i := 0; i < jobs; i++ {
		if _, err := r.Create(ctx, "uploads/p.jpg", "uploads/g.jpg", 3); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	// Several workers drain the queue concurrently; every job must be handed
	// out exactly once.
	var mu sync.Mutex
	claimed := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := r.ClaimNext(ctx)
				if errors.Is(err, domain.ErrNoJob) {
					return
				}
				if err != nil {
					t.Errorf("ClaimNext() error = %v", err)
					return
				}
				mu.Lock()
				claimed[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != jobs {
		t.Fatalf("claimed %d distinct jobs, want %d", len(claimed), jobs)
	}
	for id, n := range claimed {
		if n != 1 {
			t.Fatalf("job %s claimed %d times", id, n)
		}
	}
}

func TestMemoryClaimStampsAndOrder(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryJobRepository()

	now := time.Now()
	r.Now = func() time.Time { return now }

	first, err := r.Create(ctx, "p1", "g1", 3)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := r.Create(ctx, "p2", "g2", 3); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	job, err := r.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}
	if job.ID != first.ID {
		t.Fatalf("claimed %s, want oldest job %s", job.ID, first.ID)
	}
	if job.Status != domain.JobStatusProcessing {
		t.Fatalf("status = %s, want processing", job.Status)
	}
	if job.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", job.Attempts)
	}
	if job.ProcessingStartedAt == nil || !job.ProcessingStartedAt.Equal(now) {
		t.Fatalf("processing_started_at = %v, want claim time", job.ProcessingStartedAt)
	}
}

func TestMemorySweepStuckRequeuesWhileAttemptsRemain(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryJobRepository()

	now := time.Now()
	r.Now = func() time.Time { return now }

	created, err := r.Create(ctx, "p", "g", 3)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := r.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}

	// Five minutes later the worker is presumed dead.
	now = now.Add(5 * time.Minute)
	swept, err := r.SweepStuck(ctx, 4*time.Minute)
	if err != nil {
		t.Fatalf("SweepStuck() error = %v", err)
	}
	if swept != 1 {
		t.Fatalf("swept = %d, want 1", swept)
	}

	job, err := r.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if job.Status != domain.JobStatusQueued {
		t.Fatalf("status = %s, want requeued", job.Status)
	}
	if job.ProcessingStartedAt != nil {
		t.Fatalf("processing_started_at should be cleared on requeue")
	}
	if job.Attempts != 1 {
		t.Fatalf("attempts = %d, requeue must not consume an attempt", job.Attempts)
	}
}

func TestMemorySweepStuckFailsExhaustedJob(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryJobRepository()

	now := time.Now()
	r.Now = func() time.Time { return now }

	created, err := r.Create(ctx, "p", "g", 1)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := r.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}

	now = now.Add(5 * time.Minute)
	if _, err := r.SweepStuck(ctx, 4*time.Minute); err != nil {
		t.Fatalf("SweepStuck() error = %v", err)
	}

	job, err := r.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if job.Status != domain.JobStatusError {
		t.Fatalf("status = %s, want error", job.Status)
	}
	if job.ErrorCode == nil || *job.ErrorCode != domain.ErrCodeWorkerTimeout {
		t.Fatalf("error_code = %v, want %s", job.ErrorCode, domain.ErrCodeWorkerTimeout)
	}
}

func TestMemorySweepStuckLeavesOthersAlone(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryJobRepository()

	now := time.Now()
	r.Now = func() time.Time { return now }

	queued, err := r.Create(ctx, "p1", "g1", 3)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	fresh, err := r.Create(ctx, "p2", "g2", 3)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Finish the oldest job so it is terminal when the sweep runs.
	first, err := r.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}
	if err := r.MarkDone(ctx, first.ID, "results/done.png"); err != nil {
		t.Fatalf("MarkDone() error = %v", err)
	}

	// Recent processing job, well inside the timeout.
	now = now.Add(1 * time.Minute)
	if _, err := r.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}

	now = now.Add(2 * time.Minute)
	swept, err := r.SweepStuck(ctx, 4*time.Minute)
	if err != nil {
		t.Fatalf("SweepStuck() error = %v", err)
	}
	if swept != 0 {
		t.Fatalf("swept = %d, want 0: nothing is stuck yet", swept)
	}

	doneJob, _ := r.GetByID(ctx, queued.ID)
	if doneJob.Status != domain.JobStatusDone {
		t.Fatalf("done job status = %s, sweep must never touch terminal jobs", doneJob.Status)
	}
	processing, _ := r.GetByID(ctx, fresh.ID)
	if processing.Status != domain.JobStatusProcessing {
		t.Fatalf("fresh job status = %s, want still processing", processing.Status)
	}
}

func TestMemoryMarkTransitionsRequireProcessing(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryJobRepository()

	job, err := r.Create(ctx, "p", "g", 3)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := r.MarkDone(ctx, job.ID, "results/x.png"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("MarkDone on queued job = %v, want ErrNotFound", err)
	}
	if err := r.MarkError(ctx, job.ID, domain.ErrCodeWorkerError, "boom"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("MarkError on queued job = %v, want ErrNotFound", err)
	}

	if _, err := r.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}
	if err := r.MarkDone(ctx, job.ID, "results/x.png"); err != nil {
		t.Fatalf("MarkDone on processing job = %v", err)
	}

	got, err := r.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != domain.JobStatusDone || got.ResultImageKey == nil || *got.ResultImageKey != "results/x.png" {
		t.Fatalf("job after MarkDone = %+v", got)
	}
}

func TestMemoryMarkErrorTruncatesMessage(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryJobRepository()

	job, err := r.Create(ctx, "p", "g", 3)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := r.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}

	long := make([]byte, 3*domain.MaxErrorMessageLen)
	for i := range long {
		long[i] = 'x'
	}
	if err := r.MarkError(ctx, job.ID, domain.ErrCodeWorkerError, string(long)); err != nil {
		t.Fatalf("MarkError() error = %v", err)
	}

	got, _ := r.GetByID(ctx, job.ID)
	if got.ErrorMessage == nil || len(*got.ErrorMessage) != domain.MaxErrorMessageLen {
		t.Fatalf("error message not truncated to %d chars", domain.MaxErrorMessageLen)
	}
}

func TestMemoryListFiltersByStatus(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryJobRepository()

	base := time.Now()
	tick := 0
	r.Now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for i := 0; i < 3; i++ {
		if _, err := r.Create(ctx, "p", "g", 3); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	if _, err := r.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}

	queued := domain.JobStatusQueued
	jobs, err := r.List(ctx, &queued, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("queued jobs = %d, want 2", len(jobs))
	}

	all, err := r.List(ctx, nil, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all jobs = %d, want 3", len(all))
	}
	// Newest first.
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.After(all[i-1].CreatedAt) {
			t.Fatalf("jobs not ordered newest first: %v before %v", all[i-1].CreatedAt, all[i].CreatedAt)
		}
	}
}
