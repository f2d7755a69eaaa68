package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for try-on jobs. The claim and sweep
// operations carry the concurrency contract: ClaimNext must hand a given
// queued job to at most one caller, and SweepStuck must only touch
// processing rows older than the timeout.
type JobRepository interface {
	Create(ctx context.Context, personKey, garmentKey string, maxAttempts int) (*Job, error)
	GetByID(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, status *JobStatus, limit int) ([]Job, error)

	// ClaimNext atomically transitions the oldest claimable queued job to
	// processing, increments attempts, stamps processing_started_at and
	// clears prior error fields. Returns ErrNoJob when nothing is claimable.
	ClaimNext(ctx context.Context) (*Job, error)

	// SweepStuck requeues processing jobs older than timeout while they have
	// attempts left, and fails the exhausted ones with WORKER_TIMEOUT.
	// Returns the number of jobs touched.
	SweepStuck(ctx context.Context, timeout time.Duration) (int, error)

	MarkDone(ctx context.Context, id, resultKey string) error
	MarkError(ctx context.Context, id, code, message string) error
}

// ApiKey authenticates API callers and carries their per-minute rate limit.
type ApiKey struct {
	ID         string
	Name       string
	Key        string
	IsActive   bool
	RPMLimit   int
	CreatedAt  time.Time
	LastUsedAt *time.Time
	RevokedAt  *time.Time
}

// ApiKeyRepository defines persistence for API keys.
type ApiKeyRepository interface {
	Create(ctx context.Context, name string, rpmLimit int) (*ApiKey, error)
	GetActiveByKey(ctx context.Context, key string) (*ApiKey, error)
	TouchLastUsed(ctx context.Context, id string) error
	Revoke(ctx context.Context, id string) error
	List(ctx context.Context, limit int) ([]ApiKey, error)
}
