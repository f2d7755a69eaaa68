package joblog

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStream appends job logs to logs/<id>.log under a base directory. It is
// the fallback when no Redis is configured.
type FileStream struct {
	dir string
}

// NewFileStream ensures the log directory exists.
func NewFileStream(dir string) (*FileStream, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("joblog: log directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("joblog: ensure log directory: %w", err)
	}
	return &FileStream{dir: dir}, nil
}

func (s *FileStream) path(jobID string) string {
	return filepath.Join(s.dir, jobID+".log")
}

// Append writes one line to the job's log file.
func (s *FileStream) Append(ctx context.Context, jobID, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path(jobID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("joblog: open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(formatLine(msg) + "\n"); err != nil {
		return fmt.Errorf("joblog: append: %w", err)
	}
	return nil
}

// Tail returns up to n most recent lines, oldest first. Missing files yield
// an empty tail, not an error.
func (s *FileStream) Tail(ctx context.Context, jobID string, n int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		n = 100
	}
	f, err := os.Open(s.path(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("joblog: open log file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("joblog: read log file: %w", err)
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

var _ Stream = (*FileStream)(nil)
