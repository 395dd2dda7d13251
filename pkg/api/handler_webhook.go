package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/gofrolist/calorie-track-ai-bot/pkg/aggregator"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/bot"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/config"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/logging"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/models"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/trigger"
)

// webhookHandler handles POST /bot, the platform update ingress.
// Responses are always 200 for unparseable or unclassifiable updates so the
// platform never retries; only validated-but-invalid submissions get 400.
func (s *Server) webhookHandler(c echo.Context) error {
	received := time.Now()

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return c.JSON(http.StatusOK, WebhookResponse{Status: "ignored"})
	}

	update, err := models.ParseUpdate(body)
	if err != nil {
		s.logger.Warn("Unparseable update, acking without retry", "error", err)
		return c.JSON(http.StatusOK, WebhookResponse{Status: "ignored"})
	}

	log := logging.WithStage(s.logger, logging.StageReceived)
	log.Info("Update received", "update_id", update.UpdateID)

	// Album updates buffer until the group settles; the aggregator re-enters
	// the dispatch path asynchronously via dispatchFinalizedGroup.
	if s.aggregator.Add(context.WithoutCancel(c.Request().Context()), update) {
		logging.WithStage(s.logger, logging.StageBuffered).Info("Album update buffered",
			"update_id", update.UpdateID,
			"media_group_id", update.Message.MediaGroupID)
		return c.JSON(http.StatusOK, WebhookResponse{Status: "buffered"})
	}

	decision, ok := s.classifier.Classify(update)
	if !ok {
		return c.JSON(http.StatusOK, WebhookResponse{Status: "ignored"})
	}

	job, err := s.dispatch(c.Request().Context(), decision, received)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, WebhookResponse{
		Status:      "ok",
		JobID:       job.JobID,
		TriggerType: string(job.TriggerType),
	})
}

// dispatch runs the post-classification pipeline: hashing, permission notice,
// photo validation, placeholders, and enqueue. The returned error is already
// an HTTP error.
func (s *Server) dispatch(ctx context.Context, decision *trigger.Decision, received time.Time) (*models.EstimateJob, error) {
	chatHash := s.hasher.HashChatID(decision.RawChatID)
	userHash := s.hasher.HashUserID(decision.SourceUserID)

	jobID := uuid.New().String()
	log := logging.Inline(jobID, decision.Trigger, decision.ChatType, userHash)

	privacyNotice := decision.PrivacyNotice
	if decision.ChatType.IsGroup() {
		privacyNotice = s.maybeSendPermissionNotice(ctx, decision, chatHash, userHash, log)
	}

	if err := validatePhotos(decision); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	job := &models.EstimateJob{
		JobID:            jobID,
		TriggerType:      decision.Trigger,
		ChatType:         decision.ChatType,
		RawChatID:        decision.RawChatID,
		ThreadID:         decision.ThreadID,
		ReplyToMessageID: decision.ReplyToMessageID,
		PhotoFileIDs:     decision.PhotoFileIDs,
		Caption:          decision.Caption,
		SourceUserID:     decision.SourceUserID,
		SourceUserHash:   userHash,
		ChatIDHash:       chatHash,
		ConsentScope:     decision.ConsentScope,
		Metadata: models.JobMetadata{
			PrivacyNotice:     privacyNotice,
			FailureDMRequired: decision.FailureDMRequired,
			InlineQueryID:     decision.InlineQueryID,
		},
		EnqueuedAt: time.Now().UTC(),
	}

	// Placeholders go out before enqueue so the worker can edit them in place.
	s.sendPlaceholders(ctx, decision, job, log)

	if _, err := s.queue.Enqueue(ctx, job); err != nil {
		log.Error("Enqueue failed", "error", err)
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "estimate queue unavailable")
	}

	ackLatency := float64(time.Since(received).Milliseconds())
	s.metrics.RecordAckLatency(decision.Trigger, ackLatency)
	s.analytics.RecordRequest(ctx, decision.Trigger, decision.ChatType, ackLatency)

	logging.WithStage(log, logging.StageEnqueued).Info("Job enqueued",
		"photo_count", len(job.PhotoFileIDs),
		"ack_latency_ms", ackLatency)
	return job, nil
}

// validatePhotos enforces the photo policy on a classified submission: count,
// declared MIME type, and per-photo size where the platform reported one.
func validatePhotos(decision *trigger.Decision) error {
	if err := aggregator.ValidatePhotoCount(len(decision.PhotoFileIDs)); err != nil {
		return err
	}
	if decision.MIMEType != "" {
		if err := aggregator.ValidateMIMEType(decision.MIMEType); err != nil {
			return err
		}
	}
	for _, size := range decision.PhotoFileSizes {
		if err := aggregator.ValidateFileSize(size); err != nil {
			return err
		}
	}
	return nil
}

// maybeSendPermissionNotice shows the group privacy notice at most once per
// chat/user pair within the TTL. A platform write refusal here is the
// permission-block signal. Returns whether the notice went out on this
// request.
func (s *Server) maybeSendPermissionNotice(ctx context.Context, decision *trigger.Decision, chatHash, userHash string, log *slog.Logger) bool {
	due, err := s.notices.Due(ctx, chatHash, userHash)
	if err != nil || !due {
		return false
	}

	_, err = s.bot.SendMessage(ctx, bot.SendMessageParams{
		ChatID:          decision.RawChatID,
		Text:            bot.PrivacyNoticeText,
		MessageThreadID: decision.ThreadID,
	})
	if err != nil {
		if bot.IsPermissionDenied(err) {
			s.metrics.RecordPermissionBlock(decision.Trigger, decision.ChatType)
			s.analytics.RecordPermissionBlock(ctx, decision.Trigger, decision.ChatType)
		}
		log.Warn("Permission notice delivery failed", "error", err)
		return false
	}

	if _, err := s.notices.Mark(ctx, chatHash, userHash); err != nil {
		log.Warn("Permission notice mark failed", "error", err)
	}
	return true
}

// sendPlaceholders performs the acknowledgement side-effects: a chat
// placeholder for group triggers, an inline-query answer for inline triggers.
// Failures are logged; the job still goes out.
func (s *Server) sendPlaceholders(ctx context.Context, decision *trigger.Decision, job *models.EstimateJob, log *slog.Logger) {
	switch {
	case decision.Trigger == config.TriggerInlineQuery:
		text := bot.PlaceholderText
		if decision.ConsentScope == config.ConsentInlinePrivate && decision.PrivacyNotice {
			text += "\n\n" + bot.PrivacyNoticeText
		}
		err := s.bot.AnswerInlineQuery(ctx, decision.InlineQueryID, []bot.InlineQueryArticle{{
			Type:        "article",
			ID:          job.JobID,
			Title:       bot.InlineGuideTitle,
			Description: text,
			InputText:   text,
		}})
		if err != nil {
			log.Warn("Inline acknowledgement failed", "error", err)
		}

	case decision.ChatType.IsGroup() || decision.Trigger == config.TriggerPrivatePhoto:
		msg, err := s.bot.SendMessage(ctx, bot.SendMessageParams{
			ChatID:           decision.RawChatID,
			Text:             bot.PlaceholderText,
			MessageThreadID:  decision.ThreadID,
			ReplyToMessageID: decision.ReplyToMessageID,
		})
		if err != nil {
			if bot.IsPermissionDenied(err) {
				s.metrics.RecordPermissionBlock(decision.Trigger, decision.ChatType)
				s.analytics.RecordPermissionBlock(ctx, decision.Trigger, decision.ChatType)
			}
			log.Warn("Placeholder delivery failed", "error", err)
			return
		}
		job.Metadata.PlaceholderMessageID = msg.MessageID
	}
}

// dispatchFinalizedGroup re-enters the dispatch path for a settled album.
// There is no HTTP response to carry errors, so failures are logged and
// over-limit albums get a user-facing notice.
func (s *Server) dispatchFinalizedGroup(ctx context.Context, group *aggregator.FinalizedGroup) {
	if len(group.Updates) == 0 {
		return
	}

	decision, ok := s.classifier.Classify(group.Updates[0])
	if !ok {
		return
	}
	decision.PhotoFileIDs = group.PhotoFileIDs
	decision.PhotoFileSizes = group.PhotoFileSizes
	if group.Caption != "" {
		decision.Caption = group.Caption
	}

	if group.Truncated {
		if _, err := s.bot.SendMessage(ctx, bot.SendMessageParams{
			ChatID:          decision.RawChatID,
			Text:            bot.TooManyPhotosText,
			MessageThreadID: decision.ThreadID,
		}); err != nil {
			s.logger.Warn("Over-limit notice delivery failed",
				"media_group_id", group.MediaGroupID, "error", err)
		}
	}

	if _, err := s.dispatch(ctx, decision, time.Now()); err != nil {
		s.logger.Error("Album dispatch failed",
			"media_group_id", group.MediaGroupID, "error", err)
	}
}

// webhookInfoHandler handles GET /bot/webhook-info, surfacing the platform's
// webhook registration state for ops.
func (s *Server) webhookInfoHandler(c echo.Context) error {
	info, err := s.bot.GetWebhookInfo(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "webhook info unavailable")
	}
	return c.JSON(http.StatusOK, info)
}
