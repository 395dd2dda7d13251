package config

// TriggerType defines the shape of user intent that started an estimation.
type TriggerType string

const (
	// TriggerInlineQuery is an inline query typed into the message field.
	TriggerInlineQuery TriggerType = "inline_query"
	// TriggerReplyMention is a group reply to a photo message that mentions the bot.
	TriggerReplyMention TriggerType = "reply_mention"
	// TriggerDirectMention is a group message with photos that mentions the bot.
	TriggerDirectMention TriggerType = "direct_mention"
	// TriggerPrivatePhoto is a photo sent directly to the bot in a private chat.
	TriggerPrivatePhoto TriggerType = "private_photo"
)

// IsValid checks if the trigger type is valid.
func (t TriggerType) IsValid() bool {
	switch t {
	case TriggerInlineQuery, TriggerReplyMention, TriggerDirectMention, TriggerPrivatePhoto:
		return true
	default:
		return false
	}
}

// AllTriggerTypes returns every trigger type, in a stable order.
func AllTriggerTypes() []TriggerType {
	return []TriggerType{TriggerInlineQuery, TriggerReplyMention, TriggerDirectMention, TriggerPrivatePhoto}
}

// ChatType mirrors the messaging platform's chat.type field.
type ChatType string

const (
	// ChatTypePrivate is a one-on-one chat with the bot.
	ChatTypePrivate ChatType = "private"
	// ChatTypeGroup is a basic group chat.
	ChatTypeGroup ChatType = "group"
	// ChatTypeSupergroup is a large group chat with threads.
	ChatTypeSupergroup ChatType = "supergroup"
)

// IsValid checks if the chat type is valid.
func (c ChatType) IsValid() bool {
	return c == ChatTypePrivate || c == ChatTypeGroup || c == ChatTypeSupergroup
}

// IsGroup reports whether the chat type is a group or supergroup.
func (c ChatType) IsGroup() bool {
	return c == ChatTypeGroup || c == ChatTypeSupergroup
}

// ConsentScope defines which consent rules govern an estimation.
type ConsentScope string

const (
	// ConsentInlinePrivate applies to private-chat and private inline usage.
	ConsentInlinePrivate ConsentScope = "inline_private"
	// ConsentInlineGroup applies to in-group usage.
	ConsentInlineGroup ConsentScope = "inline_group"
)

// IsValid checks if the consent scope is valid.
func (s ConsentScope) IsValid() bool {
	return s == ConsentInlinePrivate || s == ConsentInlineGroup
}

// FailureReason is the failure taxonomy for the inline pipeline.
// Every failure maps to exactly one reason.
type FailureReason string

const (
	// FailureProcessingError covers any otherwise-unclassified worker error.
	FailureProcessingError FailureReason = "processing_error"
	// FailureModelError means the vision model returned unusable output after one retry.
	FailureModelError FailureReason = "model_error"
	// FailureTimeout means an external call exceeded its deadline.
	FailureTimeout FailureReason = "timeout"
	// FailureQuotaExhausted means a model rate limit or cost cap was hit.
	FailureQuotaExhausted FailureReason = "quota_exhausted"
	// FailurePermissionDenied means the platform refused delivery.
	FailurePermissionDenied FailureReason = "permission_denied"
	// FailureInvalidInput means validation was violated (photo count, MIME, size).
	FailureInvalidInput FailureReason = "invalid_input"
)

// IsValid checks if the failure reason is valid.
func (r FailureReason) IsValid() bool {
	switch r {
	case FailureProcessingError, FailureModelError, FailureTimeout,
		FailureQuotaExhausted, FailurePermissionDenied, FailureInvalidInput:
		return true
	default:
		return false
	}
}
