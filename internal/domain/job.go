package domain

import "time"

// JobStatus enumerates try-on job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusError      JobStatus = "error"
)

// DefaultMaxAttempts bounds how often a job may be claimed before the
// watchdog gives up on it.
const DefaultMaxAttempts = 3

// Job is the durable record of one try-on request. Jobs are created by the
// API layer, claimed and finished by workers, recovered by the watchdog, and
// never deleted.
type Job struct {
	ID                  string
	Status              JobStatus
	PersonImageKey      string
	GarmentImageKey     string
	ResultImageKey      *string
	ErrorCode           *string
	ErrorMessage        *string
	Attempts            int
	MaxAttempts         int
	ProcessingStartedAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Terminal reports whether the job reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusError
}
