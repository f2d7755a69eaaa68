package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrNoJob        = errors.New("no job available")
	ErrUnauthorized = errors.New("unauthorized")
)

// Stable error codes persisted on failed jobs and returned by the API.
const (
	ErrCodePoseNotFound      = "POSE_NOT_FOUND"
	ErrCodeWriteFailed       = "WRITE_FAILED"
	ErrCodeGarmentLowQuality = "GARMENT_IMAGE_LOW_QUALITY"
	ErrCodeWorkerError       = "WORKER_ERROR"
	ErrCodeWorkerTimeout     = "WORKER_TIMEOUT"
)

// MaxErrorMessageLen bounds persisted error messages.
const MaxErrorMessageLen = 2000

// TruncateErrorMessage clips a human-readable error message to the persisted
// bound.
func TruncateErrorMessage(msg string) string {
	if len(msg) > MaxErrorMessageLen {
		return msg[:MaxErrorMessageLen]
	}
	return msg
}
