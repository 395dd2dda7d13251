package config

import "time"

// QueueConfig contains job queue and worker pool configuration.
// These values control how estimate jobs are dequeued and processed.
type QueueConfig struct {
	// QueueName is the Redis list holding pending estimate jobs.
	QueueName string

	// WorkerCount is the number of estimate worker goroutines per replica.
	// Workers compete on the shared queue; each job goes to exactly one worker.
	WorkerCount int

	// DequeueTimeout is the blocking-pop timeout for a single dequeue attempt.
	DequeueTimeout time.Duration

	// EstimateTimeout is the wall-clock deadline for one vision-model call.
	EstimateTimeout time.Duration

	// DeliveryTimeout bounds a single chat delivery attempt.
	DeliveryTimeout time.Duration

	// DequeueBackoffMin is the initial backoff after a dequeue (store) error.
	DequeueBackoffMin time.Duration

	// DequeueBackoffMax caps the exponential dequeue backoff.
	DequeueBackoffMax time.Duration

	// DequeueRetryBudget is how many consecutive dequeue failures are tolerated
	// before the process gives up (exit code 2).
	DequeueRetryBudget int

	// GracefulShutdownTimeout is the max time to wait for in-flight jobs
	// to complete during shutdown.
	GracefulShutdownTimeout time.Duration
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		QueueName:               "estimate_jobs",
		WorkerCount:             4,
		DequeueTimeout:          10 * time.Second,
		EstimateTimeout:         30 * time.Second,
		DeliveryTimeout:         10 * time.Second,
		DequeueBackoffMin:       100 * time.Millisecond,
		DequeueBackoffMax:       10 * time.Second,
		DequeueRetryBudget:      10,
		GracefulShutdownTimeout: 60 * time.Second,
	}
}
