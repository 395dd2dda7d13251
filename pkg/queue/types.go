// Package queue provides the durable estimate-job queue and the worker pool
// that drains it.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/gofrolist/calorie-track-ai-bot/pkg/config"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/models"
)

// Sentinel errors for queue operations.
var (
	// ErrNoJobsAvailable indicates the blocking pop timed out with an empty queue.
	ErrNoJobsAvailable = errors.New("no jobs available")

	// ErrQueueUnavailable indicates the backing store could not be reached.
	ErrQueueUnavailable = errors.New("queue unavailable")
)

// Estimator is the vision-model boundary consumed by workers.
type Estimator interface {
	EstimateFromPhotos(ctx context.Context, urls []string, description string) (*models.EstimateResult, error)
}

// PhotoResolver turns a platform file id into a fetchable URL
// (presigned object-store GET or platform file URL).
type PhotoResolver interface {
	ResolvePhotoURL(ctx context.Context, fileID string) (string, error)
}

// MealStore persists completed estimations. Implementations are idempotent
// on job id: redelivered jobs must not create duplicates.
type MealStore interface {
	SaveMeal(ctx context.Context, meal *models.Meal) error
}

// Delivery sends estimation output back to the chat. Implementations report
// platform write refusals via errors matching bot.IsPermissionDenied.
type Delivery interface {
	DeliverResult(ctx context.Context, job *models.EstimateJob, result *models.EstimateResult) error
	DeliverFailureDM(ctx context.Context, job *models.EstimateJob, reason config.FailureReason) error
	DeliverFailureInPlace(ctx context.Context, job *models.EstimateJob, reason config.FailureReason) error
}

// AnalyticsSink receives per-event rollup updates for the durable daily
// buckets. Implementations are fail-open: errors are logged, never returned.
type AnalyticsSink interface {
	RecordSuccess(ctx context.Context, trigger config.TriggerType, chatType config.ChatType, resultLatencyMs float64)
	RecordFailure(ctx context.Context, trigger config.TriggerType, chatType config.ChatType, reason config.FailureReason)
	RecordPermissionBlock(ctx context.Context, trigger config.TriggerType, chatType config.ChatType)
}

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID            string       `json:"id"`
	Status        WorkerStatus `json:"status"`
	CurrentJobID  string       `json:"current_job_id,omitempty"`
	JobsProcessed int          `json:"jobs_processed"`
	LastActivity  time.Time    `json:"last_activity"`
}

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	IsHealthy     bool           `json:"is_healthy"`
	PodID         string         `json:"pod_id"`
	ActiveWorkers int            `json:"active_workers"`
	TotalWorkers  int            `json:"total_workers"`
	WorkerStats   []WorkerHealth `json:"worker_stats"`
}
