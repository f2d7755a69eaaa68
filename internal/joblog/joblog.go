// Package joblog provides the per-job append-only log stream: one
// timestamped line per pipeline step, keyed by job id. It is consumed by
// operators, never by the pipeline itself, so append failures are logged
// and swallowed by callers.
package joblog

import (
	"context"
	"fmt"
	"time"
)

// Stream appends and tails per-job log lines.
type Stream interface {
	Append(ctx context.Context, jobID, msg string) error
	Tail(ctx context.Context, jobID string, n int) ([]string, error)
}

func formatLine(msg string) string {
	return fmt.Sprintf("%s %s", time.Now().UTC().Format(time.RFC3339), msg)
}
