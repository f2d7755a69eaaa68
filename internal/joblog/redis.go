package joblog

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStream keeps job logs in capped Redis lists under joblog:<id>.
type RedisStream struct {
	client *redis.Client
	maxLen int64
	ttl    time.Duration
}

// NewRedisStream connects to Redis and verifies the connection.
func NewRedisStream(ctx context.Context, addr, password string) (*RedisStream, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("joblog: redis ping: %w", err)
	}

	return &RedisStream{
		client: client,
		maxLen: 500,
		ttl:    7 * 24 * time.Hour,
	}, nil
}

func (s *RedisStream) key(jobID string) string {
	return "joblog:" + jobID
}

// Append pushes one line onto the job's list and re-caps it.
func (s *RedisStream) Append(ctx context.Context, jobID, msg string) error {
	key := s.key(jobID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, formatLine(msg))
	pipe.LTrim(ctx, key, -s.maxLen, -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("joblog: append: %w", err)
	}
	return nil
}

// Tail returns up to n most recent lines, oldest first.
func (s *RedisStream) Tail(ctx context.Context, jobID string, n int) ([]string, error) {
	if n <= 0 {
		n = 100
	}
	lines, err := s.client.LRange(ctx, s.key(jobID), int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("joblog: tail: %w", err)
	}
	return lines, nil
}

// Close releases the underlying Redis connection.
func (s *RedisStream) Close() error {
	return s.client.Close()
}

var _ Stream = (*RedisStream)(nil)
