package models

import (
	"time"

	"github.com/gofrolist/calorie-track-ai-bot/pkg/config"
)

// Meal is the persisted record of a completed estimation.
// Persistence is idempotent on JobID: redelivered jobs never create duplicates.
type Meal struct {
	ID             string             `json:"id"`
	JobID          string             `json:"job_id"`
	SourceUserHash string             `json:"source_user_hash"`
	ChatIDHash     string             `json:"chat_id_hash"`
	TriggerType    config.TriggerType `json:"trigger_type"`
	Caption        string             `json:"caption,omitempty"`
	PhotoCount     int                `json:"photo_count"`
	Estimate       EstimateResult     `json:"estimate"`
	CreatedAt      time.Time          `json:"created_at"`
}
