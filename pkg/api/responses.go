package api

import (
	"github.com/gofrolist/calorie-track-ai-bot/pkg/database"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/models"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/queue"
)

// WebhookResponse is returned by POST /bot.
// Status is one of: ok, buffered, ignored.
type WebhookResponse struct {
	Status      string `json:"status"`
	JobID       string `json:"job_id,omitempty"`
	TriggerType string `json:"trigger_type,omitempty"`
}

// DateRange is the inclusive date window of an analytics summary.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// SLAInfo echoes the acknowledgement SLA target alongside the data it
// applies to.
type SLAInfo struct {
	AckTargetMs int64 `json:"ack_target_ms"`
}

// AccuracyInfo echoes the accuracy tolerance the buckets were computed with.
type AccuracyInfo struct {
	TolerancePct float64 `json:"tolerance_pct"`
}

// InlineSummaryResponse is returned by GET /api/v1/analytics/inline-summary.
type InlineSummaryResponse struct {
	Range    DateRange                      `json:"range"`
	SLA      SLAInfo                        `json:"sla"`
	Accuracy AccuracyInfo                   `json:"accuracy"`
	Buckets  []*models.InlineAnalyticsDaily `json:"buckets"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status          string                 `json:"status"`
	Version         string                 `json:"version"`
	Database        *database.HealthStatus `json:"database,omitempty"`
	WorkerPool      *queue.PoolHealth      `json:"worker_pool,omitempty"`
	QueueDepth      *int64                 `json:"queue_depth,omitempty"`
	OpenMediaGroups int                    `json:"open_media_groups"`
}
