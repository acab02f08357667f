package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrQueueClosed is returned by Dequeue after Close.
var ErrQueueClosed = errors.New("summary queue closed")

// Job is one pending summarization.
type Job struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

// Queue decouples message persistence from summarization. Enqueue is
// called on the turn path and must be cheap; Dequeue blocks until a
// job arrives, the context ends, or the queue closes.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context) (*Job, error)
	// Len reports the approximate number of waiting jobs.
	Len(ctx context.Context) (int, error)
	Close() error
}

// MemoryQueue is a process-local queue for single-instance
// deployments and tests.
type MemoryQueue struct {
	ch   chan Job
	done chan struct{}
}

// NewMemoryQueue creates an in-process queue with the given capacity
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &MemoryQueue{ch: make(chan Job, capacity), done: make(chan struct{})}
}

// Enqueue implements Queue. A full queue drops the job rather than
// blocking the turn.
func (q *MemoryQueue) Enqueue(_ context.Context, job Job) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- job:
		return nil
	default:
		return fmt.Errorf("summary queue full, dropping job for message %s", job.MessageID)
	}
}

// Dequeue implements Queue
func (q *MemoryQueue) Dequeue(ctx context.Context) (*Job, error) {
	select {
	case job := <-q.ch:
		return &job, nil
	case <-q.done:
		// Drain remaining jobs before reporting closed.
		select {
		case job := <-q.ch:
			return &job, nil
		default:
			return nil, ErrQueueClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len implements Queue
func (q *MemoryQueue) Len(_ context.Context) (int, error) {
	return len(q.ch), nil
}

// Close implements Queue
func (q *MemoryQueue) Close() error {
	close(q.done)
	return nil
}

// RedisQueue is a Redis list backed queue shared across instances.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue creates a queue on the given Redis list key
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "parley:summary:jobs"
	}
	return &RedisQueue{client: client, key: key}
}

// Enqueue implements Queue
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding summary job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("pushing summary job: %w", err)
	}
	return nil
}

// Dequeue implements Queue. The blocking pop uses a short timeout so
// context cancellation is honored promptly.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	for {
		res, err := q.client.BRPop(ctx, 2*time.Second, q.key).Result()
		if errors.Is(err, redis.Nil) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
				continue
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("popping summary job: %w", err)
		}
		// BRPop returns [key, value].
		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return nil, fmt.Errorf("decoding summary job: %w", err)
		}
		return &job, nil
	}
}

// Len implements Queue
func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("summary queue length: %w", err)
	}
	return int(n), nil
}

// Close implements Queue
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
