package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gofrolist/calorie-track-ai-bot/pkg/bot"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/config"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/estimator"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/models"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/telemetry"
)

type fakeEstimator struct {
	mu    sync.Mutex
	calls []string // captions, in call order
	fail  map[string]error
}

func (f *fakeEstimator) EstimateFromPhotos(ctx context.Context, urls []string, description string) (*models.EstimateResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, description)
	f.mu.Unlock()
	if err, ok := f.fail[description]; ok {
		return nil, err
	}
	return &models.EstimateResult{
		CaloriesMean: 550,
		CaloriesMin:  450,
		CaloriesMax:  650,
		Confidence:   0.8,
	}, nil
}

type fakeResolver struct{}

func (fakeResolver) ResolvePhotoURL(ctx context.Context, fileID string) (string, error) {
	return "https://files.example.com/" + fileID, nil
}

type fakeMealStore struct {
	mu    sync.Mutex
	meals []*models.Meal
}

func (f *fakeMealStore) SaveMeal(ctx context.Context, meal *models.Meal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meals = append(f.meals, meal)
	return nil
}

func (f *fakeMealStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.meals)
}

type fakeDelivery struct {
	mu         sync.Mutex
	results    []string // job ids delivered successfully
	dms        []config.FailureReason
	inPlace    []config.FailureReason
	resultErr  error
	dmErr      error
	inPlaceErr error
}

func (f *fakeDelivery) DeliverResult(ctx context.Context, job *models.EstimateJob, result *models.EstimateResult) error {
	if f.resultErr != nil {
		return f.resultErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, job.JobID)
	return nil
}

func (f *fakeDelivery) DeliverFailureDM(ctx context.Context, job *models.EstimateJob, reason config.FailureReason) error {
	if f.dmErr != nil {
		return f.dmErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dms = append(f.dms, reason)
	return nil
}

func (f *fakeDelivery) DeliverFailureInPlace(ctx context.Context, job *models.EstimateJob, reason config.FailureReason) error {
	if f.inPlaceErr != nil {
		return f.inPlaceErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inPlace = append(f.inPlace, reason)
	return nil
}

type fakeSink struct {
	mu        sync.Mutex
	successes int
	failures  []config.FailureReason
	blocks    int
}

func (f *fakeSink) RecordSuccess(ctx context.Context, trigger config.TriggerType, chatType config.ChatType, resultLatencyMs float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes++
}

func (f *fakeSink) RecordFailure(ctx context.Context, trigger config.TriggerType, chatType config.ChatType, reason config.FailureReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, reason)
}

func (f *fakeSink) RecordPermissionBlock(ctx context.Context, trigger config.TriggerType, chatType config.ChatType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks++
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testQueueConfig() *config.QueueConfig {
	cfg := config.DefaultQueueConfig()
	cfg.WorkerCount = 1
	cfg.DequeueTimeout = 10 * time.Millisecond
	cfg.DequeueBackoffMin = time.Millisecond
	cfg.DequeueBackoffMax = 5 * time.Millisecond
	cfg.DequeueRetryBudget = 3
	return cfg
}

type workerHarness struct {
	worker    *Worker
	redis     *fakeRedis
	queue     *JobQueue
	estimator *fakeEstimator
	meals     *fakeMealStore
	delivery  *fakeDelivery
	metrics   *telemetry.Registry
	sink      *fakeSink
	fatalCh   chan error
}

func newWorkerHarness(cfg *config.QueueConfig) *workerHarness {
	h := &workerHarness{
		redis:     &fakeRedis{},
		estimator: &fakeEstimator{fail: map[string]error{}},
		meals:     &fakeMealStore{},
		delivery:  &fakeDelivery{},
		metrics:   telemetry.NewRegistry(config.DefaultInlineConfig()),
		sink:      &fakeSink{},
		fatalCh:   make(chan error, 1),
	}
	h.queue = NewJobQueue(h.redis, cfg.QueueName)
	h.worker = NewWorker("w-0", "pod-test", cfg, WorkerDeps{
		Queue:     h.queue,
		Estimator: h.estimator,
		Photos:    fakeResolver{},
		Meals:     h.meals,
		Delivery:  h.delivery,
		Metrics:   h.metrics,
		Analytics: h.sink,
	}, h.fatalCh)
	return h
}

func TestWorker_FailingJobDoesNotBlockNextJob(t *testing.T) {
	h := newWorkerHarness(testQueueConfig())
	ctx := context.Background()

	bad := validJob("job-bad")
	bad.Caption = "bad"
	h.estimator.fail["bad"] = estimator.NewReasonError(config.FailureModelError, errors.New("malformed output"))
	good := validJob("job-good")
	good.Caption = "good"

	_, err := h.queue.Enqueue(ctx, bad)
	require.NoError(t, err)
	_, err = h.queue.Enqueue(ctx, good)
	require.NoError(t, err)

	h.worker.Start(ctx)
	defer h.worker.Stop()

	require.Eventually(t, func() bool {
		h.delivery.mu.Lock()
		defer h.delivery.mu.Unlock()
		return len(h.delivery.results) == 1 && len(h.delivery.inPlace) == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"job-good"}, h.delivery.results)
	assert.Equal(t, []config.FailureReason{config.FailureModelError}, h.delivery.inPlace)
	assert.Equal(t, 1, h.meals.count(), "only the successful job persists a meal")

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	assert.Equal(t, 1, h.sink.successes)
	assert.Equal(t, []config.FailureReason{config.FailureModelError}, h.sink.failures)

	snap := h.metrics.Snapshot(config.TriggerPrivatePhoto)
	assert.Equal(t, int64(1), snap.FailureReasons[config.FailureModelError])
	assert.Equal(t, 1, snap.SampleSize)
}

func TestWorker_FailureDMForGroupJobs(t *testing.T) {
	h := newWorkerHarness(testQueueConfig())
	ctx := context.Background()

	job := validJob("job-group")
	job.TriggerType = config.TriggerReplyMention
	job.ChatType = config.ChatTypeSupergroup
	job.ConsentScope = config.ConsentInlineGroup
	replyTo := int64(123)
	job.ReplyToMessageID = &replyTo
	job.Metadata.FailureDMRequired = true

	h.worker.handleFailure(ctx, job,
		config.FailureQuotaExhausted, errors.New("429"), discardLogger())

	assert.Equal(t, []config.FailureReason{config.FailureQuotaExhausted}, h.delivery.dms)
	assert.Empty(t, h.delivery.inPlace, "group failures never post in the group")
}

func TestWorker_DMRefusalCountsAsPermissionBlock(t *testing.T) {
	h := newWorkerHarness(testQueueConfig())
	h.delivery.dmErr = &bot.APIError{Method: "sendMessage", ErrorCode: 403, Description: "Forbidden: bot was blocked by the user"}

	job := validJob("job-group")
	job.TriggerType = config.TriggerReplyMention
	job.ChatType = config.ChatTypeSupergroup
	job.ConsentScope = config.ConsentInlineGroup
	replyTo := int64(123)
	job.ReplyToMessageID = &replyTo
	job.Metadata.FailureDMRequired = true

	h.worker.handleFailure(context.Background(), job,
		config.FailureTimeout, errors.New("deadline"), discardLogger())

	snap := h.metrics.Snapshot(config.TriggerReplyMention)
	assert.Equal(t, int64(1), snap.PermissionBlocks)
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	assert.Equal(t, 1, h.sink.blocks)
}

func TestWorker_FatalAfterRetryBudget(t *testing.T) {
	cfg := testQueueConfig()
	h := newWorkerHarness(cfg)
	h.redis.popErr = errors.New("connection refused")

	h.worker.Start(context.Background())
	defer h.worker.Stop()

	select {
	case err := <-h.fatalCh:
		assert.ErrorContains(t, err, "dequeue retry budget exhausted")
	case <-time.After(2 * time.Second):
		t.Fatal("expected fatal error after retry budget exhausted")
	}
}

func TestWorker_HealthTracksProcessedJobs(t *testing.T) {
	h := newWorkerHarness(testQueueConfig())
	ctx := context.Background()

	_, err := h.queue.Enqueue(ctx, validJob("job-1"))
	require.NoError(t, err)

	h.worker.Start(ctx)
	defer h.worker.Stop()

	require.Eventually(t, func() bool {
		return h.worker.Health().JobsProcessed == 1
	}, 2*time.Second, 5*time.Millisecond)

	health := h.worker.Health()
	assert.Equal(t, "w-0", health.ID)
	assert.Equal(t, WorkerStatusIdle, health.Status)
}

func TestWorkerPool_StartStopAndHealth(t *testing.T) {
	cfg := testQueueConfig()
	cfg.WorkerCount = 3
	h := newWorkerHarness(cfg)

	pool := NewWorkerPool("pod-test", cfg, WorkerDeps{
		Queue:     h.queue,
		Estimator: h.estimator,
		Photos:    fakeResolver{},
		Meals:     h.meals,
		Delivery:  h.delivery,
		Metrics:   h.metrics,
		Analytics: h.sink,
	})

	health := pool.Health()
	assert.False(t, health.IsHealthy, "pool is unhealthy before start")

	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))
	require.NoError(t, pool.Start(ctx), "duplicate start is a no-op")
	defer pool.Stop()

	health = pool.Health()
	assert.True(t, health.IsHealthy)
	assert.Equal(t, 3, health.TotalWorkers)
	assert.Equal(t, "pod-test", health.PodID)
	assert.Len(t, health.WorkerStats, 3)
}

func TestWorkerPool_DrainsCompetingWorkers(t *testing.T) {
	cfg := testQueueConfig()
	cfg.WorkerCount = 2
	h := newWorkerHarness(cfg)

	ctx := context.Background()
	for _, id := range []string{"job-1", "job-2", "job-3", "job-4"} {
		_, err := h.queue.Enqueue(ctx, validJob(id))
		require.NoError(t, err)
	}

	pool := NewWorkerPool("pod-test", cfg, WorkerDeps{
		Queue:     h.queue,
		Estimator: h.estimator,
		Photos:    fakeResolver{},
		Meals:     h.meals,
		Delivery:  h.delivery,
		Metrics:   h.metrics,
		Analytics: h.sink,
	})
	require.NoError(t, pool.Start(ctx))
	defer pool.Stop()

	require.Eventually(t, func() bool {
		return h.meals.count() == 4
	}, 2*time.Second, 5*time.Millisecond)

	h.delivery.mu.Lock()
	defer h.delivery.mu.Unlock()
	assert.ElementsMatch(t, []string{"job-1", "job-2", "job-3", "job-4"}, h.delivery.results)
}
