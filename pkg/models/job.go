package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrolist/calorie-track-ai-bot/pkg/config"
)

// JobMetadata carries free-form per-job flags set by the trigger classifier
// and dispatcher.
type JobMetadata struct {
	// PrivacyNotice marks jobs whose acknowledgement included the privacy notice.
	PrivacyNotice bool `json:"privacy_notice,omitempty"`
	// FailureDMRequired routes failures to a direct message instead of the group.
	FailureDMRequired bool `json:"failure_dm_required,omitempty"`
	// PlaceholderMessageID is the chat placeholder sent by the dispatcher, if any.
	PlaceholderMessageID int64 `json:"placeholder_message_id,omitempty"`
	// InlineQueryID is set for inline-query triggers (acknowledgement target).
	InlineQueryID string `json:"inline_query_id,omitempty"`
}

// EstimateJob is the durable record pushed onto the estimate queue.
// Serialized as single-line JSON, enum values lowercased; workers ignore
// unknown fields for forward compatibility.
type EstimateJob struct {
	JobID            string              `json:"job_id"`
	TriggerType      config.TriggerType  `json:"trigger_type"`
	ChatType         config.ChatType     `json:"chat_type"`
	RawChatID        int64               `json:"raw_chat_id"`
	ThreadID         *int64              `json:"thread_id,omitempty"`
	ReplyToMessageID *int64              `json:"reply_to_message_id,omitempty"`
	PhotoFileIDs     []string            `json:"photo_file_ids"`
	Caption          string              `json:"caption,omitempty"`
	SourceUserID     int64               `json:"source_user_id"`
	SourceUserHash   string              `json:"source_user_hash"`
	ChatIDHash       string              `json:"chat_id_hash"`
	ConsentScope     config.ConsentScope `json:"consent_scope"`
	Metadata         JobMetadata         `json:"metadata"`
	EnqueuedAt       time.Time           `json:"enqueued_at"`
}

// Validate enforces the job invariants before enqueue.
func (j *EstimateJob) Validate() error {
	if j.JobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if !j.TriggerType.IsValid() {
		return fmt.Errorf("invalid trigger_type %q", j.TriggerType)
	}
	if !j.ChatType.IsValid() {
		return fmt.Errorf("invalid chat_type %q", j.ChatType)
	}
	if !j.ConsentScope.IsValid() {
		return fmt.Errorf("invalid consent_scope %q", j.ConsentScope)
	}
	if n := len(j.PhotoFileIDs); n < 1 || n > 5 {
		return fmt.Errorf("photo_file_ids must contain 1..5 entries, got %d", n)
	}
	if j.TriggerType == config.TriggerInlineQuery &&
		j.ChatType != config.ChatTypePrivate && j.ConsentScope != config.ConsentInlineGroup {
		return fmt.Errorf("inline_query trigger requires private chat or inline_group consent")
	}
	if j.TriggerType == config.TriggerReplyMention && j.ReplyToMessageID == nil {
		return fmt.Errorf("reply_mention trigger requires reply_to_message_id")
	}
	return nil
}

// MarshalWire serializes the job to its single-line JSON wire format.
func (j *EstimateJob) MarshalWire() ([]byte, error) {
	return json.Marshal(j)
}

// UnmarshalWireJob decodes a queue record. Unknown fields are ignored.
func UnmarshalWireJob(data []byte) (*EstimateJob, error) {
	var j EstimateJob
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decoding estimate job: %w", err)
	}
	return &j, nil
}
