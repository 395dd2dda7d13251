package bot

import (
	"context"
	"log/slog"

	"github.com/gofrolist/calorie-track-ai-bot/pkg/config"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/models"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/privacy"
)

// chatSender is the slice of Client delivery depends on.
type chatSender interface {
	SendMessage(ctx context.Context, params SendMessageParams) (*SentMessage, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
}

// ChatDelivery sends estimation results and failure notices back to chats.
// When the dispatcher left a placeholder message, the result edits it in
// place; otherwise a fresh reply goes out.
type ChatDelivery struct {
	client chatSender
	logger *slog.Logger
}

// NewChatDelivery creates a delivery layer over the given client.
func NewChatDelivery(client chatSender) *ChatDelivery {
	return &ChatDelivery{
		client: client,
		logger: slog.Default().With("component", "chat-delivery"),
	}
}

// DeliverResult posts the formatted estimate into the originating chat.
func (d *ChatDelivery) DeliverResult(ctx context.Context, job *models.EstimateJob, result *models.EstimateResult) error {
	text := FormatResult(result)

	if job.Metadata.PlaceholderMessageID != 0 {
		err := d.client.EditMessageText(ctx, job.RawChatID, job.Metadata.PlaceholderMessageID, text)
		if err == nil {
			return nil
		}
		if IsPermissionDenied(err) {
			return err
		}
		// The placeholder may have been deleted; fall through to a fresh send.
		d.logger.Warn("Placeholder edit failed, sending fresh message",
			"job_id", job.JobID, "error", err)
	}

	_, err := d.client.SendMessage(ctx, SendMessageParams{
		ChatID:           job.RawChatID,
		Text:             text,
		MessageThreadID:  job.ThreadID,
		ReplyToMessageID: job.ReplyToMessageID,
	})
	return err
}

// DeliverFailureDM sends a redacted failure notice to the requesting user's
// direct chat. Used for group inline jobs where the group should not see
// failure details.
func (d *ChatDelivery) DeliverFailureDM(ctx context.Context, job *models.EstimateJob, reason config.FailureReason) error {
	text := privacy.RedactFailureNotice(FailureText(reason))
	_, err := d.client.SendMessage(ctx, SendMessageParams{
		ChatID: job.SourceUserID,
		Text:   text,
	})
	return err
}

// DeliverFailureInPlace posts the failure notice where the request was made,
// editing the placeholder when one exists.
func (d *ChatDelivery) DeliverFailureInPlace(ctx context.Context, job *models.EstimateJob, reason config.FailureReason) error {
	text := privacy.RedactFailureNotice(FailureText(reason))

	if job.Metadata.PlaceholderMessageID != 0 {
		err := d.client.EditMessageText(ctx, job.RawChatID, job.Metadata.PlaceholderMessageID, text)
		if err == nil {
			return nil
		}
		if IsPermissionDenied(err) {
			return err
		}
		d.logger.Warn("Placeholder edit failed, sending fresh failure notice",
			"job_id", job.JobID, "error", err)
	}

	_, err := d.client.SendMessage(ctx, SendMessageParams{
		ChatID:           job.RawChatID,
		Text:             text,
		MessageThreadID:  job.ThreadID,
		ReplyToMessageID: job.ReplyToMessageID,
	})
	return err
}
