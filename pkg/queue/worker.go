package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gofrolist/calorie-track-ai-bot/pkg/bot"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/config"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/estimator"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/logging"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/models"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/telemetry"
)

// Worker is a single estimate worker that dequeues and processes jobs.
// Workers are stateless; any number may compete on the shared queue.
type Worker struct {
	id        string
	podID     string
	queue     *JobQueue
	cfg       *config.QueueConfig
	estimator Estimator
	photos    PhotoResolver
	meals     MealStore
	delivery  Delivery
	metrics   *telemetry.Registry
	analytics AnalyticsSink
	fatalCh   chan<- error
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	// Health tracking
	mu            sync.RWMutex
	status        WorkerStatus
	currentJobID  string
	jobsProcessed int
	lastActivity  time.Time
}

// WorkerDeps bundles the collaborators a worker needs.
type WorkerDeps struct {
	Queue     *JobQueue
	Estimator Estimator
	Photos    PhotoResolver
	Meals     MealStore
	Delivery  Delivery
	Metrics   *telemetry.Registry
	Analytics AnalyticsSink
}

// NewWorker creates a new estimate worker. fatalCh receives an error when the
// dequeue retry budget is exhausted (unrecoverable store disconnect).
func NewWorker(id, podID string, cfg *config.QueueConfig, deps WorkerDeps, fatalCh chan<- error) *Worker {
	return &Worker{
		id:           id,
		podID:        podID,
		queue:        deps.Queue,
		cfg:          cfg,
		estimator:    deps.Estimator,
		photos:       deps.Photos,
		meals:        deps.Meals,
		delivery:     deps.Delivery,
		metrics:      deps.Metrics,
		analytics:    deps.Analytics,
		fatalCh:      fatalCh,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker dequeue loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish.
// It is safe to call Stop multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        w.status,
		CurrentJobID:  w.currentJobID,
		JobsProcessed: w.jobsProcessed,
		LastActivity:  w.lastActivity,
	}
}

// run is the main worker loop. Dequeue failures back off exponentially
// (100ms → 10s); exhausting the retry budget reports a fatal error.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.Default().With("component", "estimate-worker", "worker_id", w.id, "pod_id", w.podID)
	log.Info("Worker started")

	backoff := w.cfg.DequeueBackoffMin
	failures := 0

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx, w.cfg.DequeueTimeout)
		if err != nil {
			if errors.Is(err, ErrNoJobsAvailable) {
				backoff = w.cfg.DequeueBackoffMin
				failures = 0
				continue
			}
			failures++
			if failures > w.cfg.DequeueRetryBudget {
				log.Error("Dequeue retry budget exhausted", "failures", failures, "error", err)
				w.reportFatal(fmt.Errorf("dequeue retry budget exhausted: %w", err))
				return
			}
			log.Warn("Dequeue failed, backing off", "backoff", backoff, "failures", failures, "error", err)
			w.sleep(backoff)
			backoff = min(backoff*2, w.cfg.DequeueBackoffMax)
			continue
		}
		backoff = w.cfg.DequeueBackoffMin
		failures = 0

		w.setStatus(WorkerStatusWorking, job.JobID)
		w.process(ctx, job)
		w.setStatus(WorkerStatusIdle, "")

		w.mu.Lock()
		w.jobsProcessed++
		w.mu.Unlock()
	}
}

// process runs a single job end to end. A failing job never crashes the
// worker; its failure path is fully contained here.
func (w *Worker) process(ctx context.Context, job *models.EstimateJob) {
	tDequeue := time.Now()
	log := logging.Inline(job.JobID, job.TriggerType, job.ChatType, job.SourceUserHash)
	logging.WithStage(log, logging.StageDequeued).Info("Job dequeued",
		"photo_count", len(job.PhotoFileIDs),
		"queue_wait_ms", tDequeue.Sub(job.EnqueuedAt).Milliseconds())

	result, reason, err := w.analyze(ctx, job, log)
	if err != nil {
		w.handleFailure(ctx, job, reason, err, log)
		return
	}

	resultLatency := time.Since(job.EnqueuedAt)
	w.metrics.RecordResultLatency(job.TriggerType, float64(resultLatency.Milliseconds()))
	w.analytics.RecordSuccess(ctx, job.TriggerType, job.ChatType, float64(resultLatency.Milliseconds()))

	w.persistMeal(ctx, job, result, log)

	deliveryCtx, cancel := context.WithTimeout(ctx, w.cfg.DeliveryTimeout)
	defer cancel()
	if err := w.delivery.DeliverResult(deliveryCtx, job, result); err != nil {
		if bot.IsPermissionDenied(err) {
			w.metrics.RecordPermissionBlock(job.TriggerType, job.ChatType)
			w.analytics.RecordPermissionBlock(ctx, job.TriggerType, job.ChatType)
		}
		logging.WithStage(log, logging.StageFailed).Error("Result delivery failed", "error", err)
		return
	}

	logging.WithStage(log, logging.StageDeliveryCompleted).Info("Job completed",
		"result_latency_ms", resultLatency.Milliseconds(),
		"calories_mean", result.CaloriesMean,
		"confidence", result.Confidence)
}

// analyze resolves photo URLs and runs the estimator. It returns the failure
// reason alongside the error so the caller records exactly one taxon.
func (w *Worker) analyze(ctx context.Context, job *models.EstimateJob, log *slog.Logger) (*models.EstimateResult, config.FailureReason, error) {
	urls := make([]string, 0, len(job.PhotoFileIDs))
	for _, fileID := range job.PhotoFileIDs {
		url, err := w.photos.ResolvePhotoURL(ctx, fileID)
		if err != nil {
			return nil, config.FailureProcessingError, fmt.Errorf("resolving photo %s: %w", fileID, err)
		}
		urls = append(urls, url)
	}

	log.Info("Analysis started", "inline_stage", string(logging.StageAnalysisStarted))

	estimateCtx, cancel := context.WithTimeout(ctx, w.cfg.EstimateTimeout)
	defer cancel()

	result, err := w.estimator.EstimateFromPhotos(estimateCtx, urls, job.Caption)
	if err != nil {
		return nil, estimator.ReasonOf(err), fmt.Errorf("estimating: %w", err)
	}

	log.Info("Analysis completed",
		"inline_stage", string(logging.StageAnalysisCompleted),
		"model_latency_ms", result.ModelLatencyMs)
	return result, "", nil
}

// persistMeal writes the meal record. Persistence is idempotent on job id;
// failures are logged and do not abort delivery.
func (w *Worker) persistMeal(ctx context.Context, job *models.EstimateJob, result *models.EstimateResult, log *slog.Logger) {
	meal := &models.Meal{
		ID:             uuid.New().String(),
		JobID:          job.JobID,
		SourceUserHash: job.SourceUserHash,
		ChatIDHash:     job.ChatIDHash,
		TriggerType:    job.TriggerType,
		Caption:        job.Caption,
		PhotoCount:     len(job.PhotoFileIDs),
		Estimate:       *result,
		CreatedAt:      time.Now().UTC(),
	}
	if err := w.meals.SaveMeal(ctx, meal); err != nil {
		log.Warn("Meal persistence failed", "error", err)
	}
}

// handleFailure records the failure and notifies the user. Group jobs with
// failure_dm_required get a redacted direct message; a platform refusal there
// counts as a permission block and ends the attempt.
func (w *Worker) handleFailure(ctx context.Context, job *models.EstimateJob, reason config.FailureReason, cause error, log *slog.Logger) {
	w.metrics.RecordFailure(job.TriggerType, reason)
	w.analytics.RecordFailure(ctx, job.TriggerType, job.ChatType, reason)
	log.Error("Job failed",
		"inline_stage", string(logging.StageFailed),
		"failure_reason", string(reason),
		"error", cause)

	deliveryCtx, cancel := context.WithTimeout(ctx, w.cfg.DeliveryTimeout)
	defer cancel()

	if job.Metadata.FailureDMRequired && job.ConsentScope == config.ConsentInlineGroup {
		if err := w.delivery.DeliverFailureDM(deliveryCtx, job, reason); err != nil {
			if bot.IsPermissionDenied(err) {
				w.metrics.RecordPermissionBlock(job.TriggerType, job.ChatType)
				w.analytics.RecordPermissionBlock(ctx, job.TriggerType, job.ChatType)
				return
			}
			log.Error("Failure DM delivery failed", "error", err)
		}
		return
	}

	if err := w.delivery.DeliverFailureInPlace(deliveryCtx, job, reason); err != nil {
		if bot.IsPermissionDenied(err) {
			w.metrics.RecordPermissionBlock(job.TriggerType, job.ChatType)
			w.analytics.RecordPermissionBlock(ctx, job.TriggerType, job.ChatType)
			return
		}
		log.Error("Failure notice delivery failed", "error", err)
	}
}

// reportFatal hands the error to the pool without blocking.
func (w *Worker) reportFatal(err error) {
	if w.fatalCh == nil {
		return
	}
	select {
	case w.fatalCh <- err:
	default:
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus, jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentJobID = jobID
	w.lastActivity = time.Now()
}
