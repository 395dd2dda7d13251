package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gofrolist/calorie-track-ai-bot/pkg/models"
)

// redisList is the subset of the Redis client the queue depends on.
type redisList interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
}

// JobQueue is a FIFO queue of estimate jobs backed by a single Redis list.
// Producers push at the head; workers block-pop from the tail, so ordering is
// strict FIFO across the queue name. Each job is delivered to at most one
// worker per dequeue; there is no visibility timeout or redelivery.
type JobQueue struct {
	client redisList
	name   string
}

// NewJobQueue creates a queue over the given Redis client and list name.
func NewJobQueue(client redisList, name string) *JobQueue {
	return &JobQueue{client: client, name: name}
}

// Enqueue validates and pushes a job, returning its job id.
func (q *JobQueue) Enqueue(ctx context.Context, job *models.EstimateJob) (string, error) {
	if err := job.Validate(); err != nil {
		return "", fmt.Errorf("invalid estimate job: %w", err)
	}
	data, err := job.MarshalWire()
	if err != nil {
		return "", fmt.Errorf("encoding estimate job: %w", err)
	}
	if err := q.client.LPush(ctx, q.name, data).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return job.JobID, nil
}

// Dequeue blocks up to timeout for the next job. A timeout with an empty
// queue returns ErrNoJobsAvailable; store failures return ErrQueueUnavailable.
func (q *JobQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.EstimateJob, error) {
	res, err := q.client.BRPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoJobsAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("%w: unexpected BRPOP reply of %d elements", ErrQueueUnavailable, len(res))
	}
	return models.UnmarshalWireJob([]byte(res[1]))
}

// Depth returns the number of pending jobs.
func (q *JobQueue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.name).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return n, nil
}
