package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrolist/calorie-track-ai-bot/pkg/config"
)

// PermissionNotice is the rate-limited "we already told this user" marker.
// Hashes are irreversible; TTL is enforced by the backing store.
type PermissionNotice struct {
	ChatIDHash     string    `json:"chat_id_hash"`
	SourceUserHash string    `json:"source_user_hash"`
	LastNotifiedAt time.Time `json:"last_notified_at"`
}

// MarshalWire serializes the notice with last_notified_at in ISO-8601 UTC.
func (n *PermissionNotice) MarshalWire() ([]byte, error) {
	return json.Marshal(struct {
		ChatIDHash     string `json:"chat_id_hash"`
		SourceUserHash string `json:"source_user_hash"`
		LastNotifiedAt string `json:"last_notified_at"`
	}{
		ChatIDHash:     n.ChatIDHash,
		SourceUserHash: n.SourceUserHash,
		LastNotifiedAt: n.LastNotifiedAt.UTC().Format(time.RFC3339),
	})
}

// UnmarshalWireNotice decodes a stored notice record.
func UnmarshalWireNotice(data []byte) (*PermissionNotice, error) {
	var raw struct {
		ChatIDHash     string `json:"chat_id_hash"`
		SourceUserHash string `json:"source_user_hash"`
		LastNotifiedAt string `json:"last_notified_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding permission notice: %w", err)
	}
	ts, err := time.Parse(time.RFC3339, raw.LastNotifiedAt)
	if err != nil {
		return nil, fmt.Errorf("decoding permission notice timestamp: %w", err)
	}
	return &PermissionNotice{
		ChatIDHash:     raw.ChatIDHash,
		SourceUserHash: raw.SourceUserHash,
		LastNotifiedAt: ts,
	}, nil
}

// FailureReasonCount is one entry of a per-bucket failure breakdown.
type FailureReasonCount struct {
	Reason config.FailureReason `json:"reason"`
	Count  int64                `json:"count"`
}

// InlineAnalyticsDaily is a durable daily rollup keyed by (date, chat_type).
type InlineAnalyticsDaily struct {
	Date                       string                       `json:"date"` // YYYY-MM-DD
	ChatType                   config.ChatType              `json:"chat_type"`
	TriggerCounts              map[config.TriggerType]int64 `json:"trigger_counts"`
	RequestCount               int64                        `json:"request_count"`
	SuccessCount               int64                        `json:"success_count"`
	FailureCount               int64                        `json:"failure_count"`
	PermissionBlockCount       int64                        `json:"permission_block_count"`
	AvgAckLatencyMs            float64                      `json:"avg_ack_latency_ms"`
	P95ResultLatencyMs         float64                      `json:"p95_result_latency_ms"`
	AccuracyWithinTolerancePct float64                      `json:"accuracy_within_tolerance_pct"`
	FailureReasons             []FailureReasonCount         `json:"failure_reasons"`
	LastUpdatedAt              time.Time                    `json:"last_updated_at"`
}

// InlineMetricsSnapshot is a read-only projection of the in-process telemetry
// registry at a point in time.
type InlineMetricsSnapshot struct {
	SampleSize           int                            `json:"sample_size"`
	AckP95Ms             float64                        `json:"ack_p95_ms"`
	ResultP95Ms          float64                        `json:"result_p95_ms"`
	PermissionBlocks     int64                          `json:"permission_blocks"`
	PermissionBlocksBy   map[config.ChatType]int64      `json:"permission_blocks_by_chat"`
	FailureReasons       map[config.FailureReason]int64 `json:"failure_reasons"`
	AvgAccuracyDeltaPct  float64                        `json:"avg_accuracy_delta_pct"`
	AccuracyDeltaSamples int                            `json:"accuracy_delta_samples"`
}
