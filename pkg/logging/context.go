// Package logging carries the structured-log conventions of the inline
// pipeline: every event logged between webhook arrival and chat delivery
// carries a correlation id, the inline trigger, the pipeline stage, the chat
// type, and a hashed user id. Raw chat or user identifiers are never logged.
package logging

import (
	"log/slog"

	"github.com/gofrolist/calorie-track-ai-bot/pkg/config"
)

// Stage tags a log event with its position in the inline pipeline.
type Stage string

const (
	StageReceived          Stage = "received"
	StageBuffered          Stage = "buffered"
	StageEnqueued          Stage = "enqueued"
	StageDequeued          Stage = "dequeued"
	StageAnalysisStarted   Stage = "analysis_started"
	StageAnalysisCompleted Stage = "analysis_completed"
	StageDeliveryCompleted Stage = "delivery_completed"
	StageFailed            Stage = "failed"
)

// Inline returns a logger pre-bound with the pipeline correlation fields.
// correlationID is the job id once allocated, else the update id.
func Inline(correlationID string, trigger config.TriggerType, chatType config.ChatType, userHash string) *slog.Logger {
	return slog.Default().With(
		"correlation_id", correlationID,
		"inline_trigger", string(trigger),
		"chat_type", string(chatType),
		"user_hash", userHash,
	)
}

// WithStage binds the inline stage to an existing pipeline logger.
func WithStage(log *slog.Logger, stage Stage) *slog.Logger {
	return log.With("inline_stage", string(stage))
}
