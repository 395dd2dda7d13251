package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrolist/calorie-track-ai-bot/pkg/config"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/models"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/telemetry"
)

// reservoirCap bounds the per-bucket latency sample reservoirs.
const reservoirCap = 1024

// AnalyticsService rolls per-event telemetry into durable daily buckets
// keyed by (date, chat_type). All Record methods are fail-open: storage
// errors are logged and swallowed so analytics never break the pipeline.
type AnalyticsService struct {
	db           Querier
	tolerancePct float64
	logger       *slog.Logger
	now          func() time.Time
}

// NewAnalyticsService creates an analytics service.
func NewAnalyticsService(db Querier, tolerancePct float64) *AnalyticsService {
	return &AnalyticsService{
		db:           db,
		tolerancePct: tolerancePct,
		logger:       slog.Default().With("component", "inline-analytics"),
		now:          time.Now,
	}
}

// bucketSamples is the working state stored in latency_samples.
type bucketSamples struct {
	Ack            []float64 `json:"ack,omitempty"`
	Result         []float64 `json:"result,omitempty"`
	AccuracyTotal  int64     `json:"accuracy_total,omitempty"`
	AccuracyWithin int64     `json:"accuracy_within,omitempty"`
}

// bucketState is one mutable daily rollup row.
type bucketState struct {
	models.InlineAnalyticsDaily
	samples bucketSamples
}

// RecordRequest counts an accepted request and its ack latency. Called by
// the dispatcher after a successful enqueue.
func (s *AnalyticsService) RecordRequest(ctx context.Context, trigger config.TriggerType, chatType config.ChatType, ackLatencyMs float64) {
	s.update(ctx, chatType, func(b *bucketState) {
		b.RequestCount++
		if b.TriggerCounts == nil {
			b.TriggerCounts = make(map[config.TriggerType]int64)
		}
		b.TriggerCounts[trigger]++
		b.samples.Ack = appendSample(b.samples.Ack, ackLatencyMs)
		b.AvgAckLatencyMs = mean(b.samples.Ack)
	})
}

// RecordSuccess counts a completed job and folds its result latency into the
// bucket's p95.
func (s *AnalyticsService) RecordSuccess(ctx context.Context, trigger config.TriggerType, chatType config.ChatType, resultLatencyMs float64) {
	s.update(ctx, chatType, func(b *bucketState) {
		b.SuccessCount++
		b.samples.Result = appendSample(b.samples.Result, resultLatencyMs)
		b.P95ResultLatencyMs = telemetry.P95(b.samples.Result)
	})
}

// RecordFailure counts a failed job under its taxonomy reason.
func (s *AnalyticsService) RecordFailure(ctx context.Context, trigger config.TriggerType, chatType config.ChatType, reason config.FailureReason) {
	s.update(ctx, chatType, func(b *bucketState) {
		b.FailureCount++
		b.FailureReasons = mergeReason(b.FailureReasons, reason)
	})
}

// RecordPermissionBlock counts a platform write refusal.
func (s *AnalyticsService) RecordPermissionBlock(ctx context.Context, trigger config.TriggerType, chatType config.ChatType) {
	s.update(ctx, chatType, func(b *bucketState) {
		b.PermissionBlockCount++
	})
}

// RecordAccuracy folds an accuracy-delta observation into the bucket's
// within-tolerance percentage.
func (s *AnalyticsService) RecordAccuracy(ctx context.Context, chatType config.ChatType, deltaPct float64) {
	s.update(ctx, chatType, func(b *bucketState) {
		b.samples.AccuracyTotal++
		if deltaPct <= s.tolerancePct && deltaPct >= -s.tolerancePct {
			b.samples.AccuracyWithin++
		}
		b.AccuracyWithinTolerancePct = 100 * float64(b.samples.AccuracyWithin) / float64(b.samples.AccuracyTotal)
	})
}

// Range returns the daily buckets within [start, end] (YYYY-MM-DD, inclusive),
// optionally filtered by chat type, ordered by date.
func (s *AnalyticsService) Range(ctx context.Context, start, end string, chatType *config.ChatType) ([]*models.InlineAnalyticsDaily, error) {
	query := `
		SELECT date::text, chat_type, trigger_counts, request_count, success_count,
		       failure_count, permission_block_count, avg_ack_latency_ms,
		       p95_result_latency_ms, accuracy_within_tolerance_pct,
		       failure_reasons, last_updated_at
		FROM inline_analytics_daily
		WHERE date >= $1::date AND date <= $2::date`
	args := []any{start, end}
	if chatType != nil {
		query += ` AND chat_type = $3`
		args = append(args, string(*chatType))
	}
	query += ` ORDER BY date, chat_type`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying analytics range: %w", err)
	}
	defer rows.Close()

	var buckets []*models.InlineAnalyticsDaily
	for rows.Next() {
		var b models.InlineAnalyticsDaily
		var chat string
		var triggerCounts, failureReasons []byte
		if err := rows.Scan(&b.Date, &chat, &triggerCounts, &b.RequestCount,
			&b.SuccessCount, &b.FailureCount, &b.PermissionBlockCount,
			&b.AvgAckLatencyMs, &b.P95ResultLatencyMs, &b.AccuracyWithinTolerancePct,
			&failureReasons, &b.LastUpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning analytics bucket: %w", err)
		}
		b.ChatType = config.ChatType(chat)
		if err := json.Unmarshal(triggerCounts, &b.TriggerCounts); err != nil {
			return nil, fmt.Errorf("decoding trigger counts: %w", err)
		}
		if err := json.Unmarshal(failureReasons, &b.FailureReasons); err != nil {
			return nil, fmt.Errorf("decoding failure reasons: %w", err)
		}
		buckets = append(buckets, &b)
	}
	return buckets, rows.Err()
}

// update loads today's bucket, applies fn, and writes it back. Concurrent
// writers may lose an increment; acceptable for rollup analytics.
func (s *AnalyticsService) update(ctx context.Context, chatType config.ChatType, fn func(*bucketState)) {
	date := s.now().UTC().Format("2006-01-02")

	state, err := s.load(ctx, date, chatType)
	if err != nil {
		s.logger.Warn("Analytics bucket load failed", "date", date, "chat_type", chatType, "error", err)
		return
	}

	fn(state)
	state.LastUpdatedAt = s.now().UTC()

	if err := s.save(ctx, state); err != nil {
		s.logger.Warn("Analytics bucket save failed", "date", date, "chat_type", chatType, "error", err)
	}
}

func (s *AnalyticsService) load(ctx context.Context, date string, chatType config.ChatType) (*bucketState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT trigger_counts, request_count, success_count, failure_count,
		       permission_block_count, avg_ack_latency_ms, p95_result_latency_ms,
		       accuracy_within_tolerance_pct, failure_reasons, latency_samples
		FROM inline_analytics_daily
		WHERE date = $1::date AND chat_type = $2`, date, string(chatType))

	state := &bucketState{}
	state.Date = date
	state.ChatType = chatType

	var triggerCounts, failureReasons, samples []byte
	err := row.Scan(&triggerCounts, &state.RequestCount, &state.SuccessCount,
		&state.FailureCount, &state.PermissionBlockCount, &state.AvgAckLatencyMs,
		&state.P95ResultLatencyMs, &state.AccuracyWithinTolerancePct,
		&failureReasons, &samples)
	if errors.Is(err, sql.ErrNoRows) {
		state.TriggerCounts = make(map[config.TriggerType]int64)
		return state, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(triggerCounts, &state.TriggerCounts); err != nil {
		return nil, fmt.Errorf("decoding trigger counts: %w", err)
	}
	if err := json.Unmarshal(failureReasons, &state.FailureReasons); err != nil {
		return nil, fmt.Errorf("decoding failure reasons: %w", err)
	}
	if err := json.Unmarshal(samples, &state.samples); err != nil {
		return nil, fmt.Errorf("decoding latency samples: %w", err)
	}
	return state, nil
}

func (s *AnalyticsService) save(ctx context.Context, state *bucketState) error {
	triggerCounts, err := json.Marshal(state.TriggerCounts)
	if err != nil {
		return fmt.Errorf("encoding trigger counts: %w", err)
	}
	failureReasons := []byte("[]")
	if state.FailureReasons != nil {
		if failureReasons, err = json.Marshal(state.FailureReasons); err != nil {
			return fmt.Errorf("encoding failure reasons: %w", err)
		}
	}
	samples, err := json.Marshal(state.samples)
	if err != nil {
		return fmt.Errorf("encoding latency samples: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO inline_analytics_daily (
			date, chat_type, trigger_counts, request_count, success_count,
			failure_count, permission_block_count, avg_ack_latency_ms,
			p95_result_latency_ms, accuracy_within_tolerance_pct,
			failure_reasons, latency_samples, last_updated_at
		) VALUES ($1::date, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (date, chat_type) DO UPDATE SET
			trigger_counts = EXCLUDED.trigger_counts,
			request_count = EXCLUDED.request_count,
			success_count = EXCLUDED.success_count,
			failure_count = EXCLUDED.failure_count,
			permission_block_count = EXCLUDED.permission_block_count,
			avg_ack_latency_ms = EXCLUDED.avg_ack_latency_ms,
			p95_result_latency_ms = EXCLUDED.p95_result_latency_ms,
			accuracy_within_tolerance_pct = EXCLUDED.accuracy_within_tolerance_pct,
			failure_reasons = EXCLUDED.failure_reasons,
			latency_samples = EXCLUDED.latency_samples,
			last_updated_at = EXCLUDED.last_updated_at`,
		state.Date, string(state.ChatType), triggerCounts, state.RequestCount,
		state.SuccessCount, state.FailureCount, state.PermissionBlockCount,
		state.AvgAckLatencyMs, state.P95ResultLatencyMs,
		state.AccuracyWithinTolerancePct, failureReasons, samples,
		state.LastUpdatedAt,
	)
	return err
}

// appendSample appends to a bounded reservoir, dropping the oldest entry
// once the cap is reached.
func appendSample(samples []float64, v float64) []float64 {
	samples = append(samples, v)
	if len(samples) > reservoirCap {
		samples = samples[len(samples)-reservoirCap:]
	}
	return samples
}

// mergeReason increments the count for a reason, adding the entry if new.
func mergeReason(reasons []models.FailureReasonCount, reason config.FailureReason) []models.FailureReasonCount {
	for i := range reasons {
		if reasons[i].Reason == reason {
			reasons[i].Count++
			return reasons
		}
	}
	return append(reasons, models.FailureReasonCount{Reason: reason, Count: 1})
}

func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples))
}
