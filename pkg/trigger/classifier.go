// Package trigger classifies incoming updates into the analysis trigger
// types and seeds the job metadata each trigger requires.
package trigger

import (
	"encoding/json"
	"strings"

	"github.com/gofrolist/calorie-track-ai-bot/pkg/config"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/models"
)

// Decision is the classifier output consumed by the dispatcher. Unknown
// update shapes yield no decision and the dispatcher ignores them.
type Decision struct {
	Trigger      config.TriggerType
	ChatType     config.ChatType
	ConsentScope config.ConsentScope

	// Metadata seeds per the trigger table.
	PrivacyNotice     bool
	FailureDMRequired bool

	// Chat targeting. ThreadID and ReplyToMessageID are set for group triggers.
	RawChatID        int64
	ThreadID         *int64
	ReplyToMessageID *int64

	// Analysis input. PhotoFileSizes aligns with PhotoFileIDs; zero means the
	// platform omitted the size. MIMEType is set only for inline payloads that
	// declare one.
	PhotoFileIDs   []string
	PhotoFileSizes []int64
	MIMEType       string
	Caption        string

	SourceUserID  int64
	InlineQueryID string
}

// Classifier maps updates to trigger decisions based on the bot's username.
type Classifier struct {
	botUsername string
}

// NewClassifier creates a classifier matching mentions of the given bot
// username (without the leading @).
func NewClassifier(botUsername string) *Classifier {
	return &Classifier{botUsername: strings.TrimPrefix(botUsername, "@")}
}

// inlinePayload is the JSON a client puts in the inline query field. Multi
// photo submissions carry file_ids; the single file_id form predates it.
type inlinePayload struct {
	FileID   string   `json:"file_id"`
	FileIDs  []string `json:"file_ids"`
	MIMEType string   `json:"mime_type"`
	Caption  string   `json:"caption"`
}

// Classify returns the trigger decision for an update, or ok=false when the
// update matches no trigger shape.
func (c *Classifier) Classify(update *models.Update) (*Decision, bool) {
	if update == nil {
		return nil, false
	}
	if update.InlineQuery != nil {
		return c.classifyInlineQuery(update.InlineQuery)
	}
	if update.Message != nil {
		return c.classifyMessage(update.Message)
	}
	return nil, false
}

func (c *Classifier) classifyInlineQuery(q *models.InlineQuery) (*Decision, bool) {
	if q.Query == "" || q.ChatType != "private" {
		return nil, false
	}

	d := &Decision{
		Trigger:       config.TriggerInlineQuery,
		ChatType:      config.ChatTypePrivate,
		ConsentScope:  config.ConsentInlinePrivate,
		PrivacyNotice: true,
		InlineQueryID: q.ID,
	}
	if q.From != nil {
		d.SourceUserID = q.From.ID
		d.RawChatID = q.From.ID
	}

	var payload inlinePayload
	if err := json.Unmarshal([]byte(q.Query), &payload); err == nil {
		switch {
		case len(payload.FileIDs) > 0:
			d.PhotoFileIDs = payload.FileIDs
		case payload.FileID != "":
			d.PhotoFileIDs = []string{payload.FileID}
		}
		d.MIMEType = payload.MIMEType
		d.Caption = payload.Caption
	}
	return d, true
}

func (c *Classifier) classifyMessage(msg *models.Message) (*Decision, bool) {
	chatType := config.ChatType(msg.Chat.Type)
	if !chatType.IsValid() {
		return nil, false
	}

	if chatType.IsGroup() {
		return c.classifyGroupMessage(msg, chatType)
	}

	// Private chat: any message carrying photos triggers analysis.
	if !msg.HasPhotos() {
		return nil, false
	}
	d := &Decision{
		Trigger:        config.TriggerPrivatePhoto,
		ChatType:       config.ChatTypePrivate,
		ConsentScope:   config.ConsentInlinePrivate,
		RawChatID:      msg.Chat.ID,
		PhotoFileIDs:   []string{msg.LargestPhoto()},
		PhotoFileSizes: []int64{msg.LargestPhotoSize()},
		Caption:        msg.Caption,
	}
	if msg.From != nil {
		d.SourceUserID = msg.From.ID
	}
	return d, true
}

func (c *Classifier) classifyGroupMessage(msg *models.Message, chatType config.ChatType) (*Decision, bool) {
	// Reply mention: text starts with the bot mention and replies to photos.
	if c.startsWithBotMention(msg) && msg.ReplyToMessage.HasPhotos() {
		replyID := msg.ReplyToMessage.MessageID
		d := &Decision{
			Trigger:           config.TriggerReplyMention,
			ChatType:          chatType,
			ConsentScope:      config.ConsentInlineGroup,
			FailureDMRequired: true,
			RawChatID:         msg.Chat.ID,
			ThreadID:          msg.ThreadID(),
			ReplyToMessageID:  &replyID,
			PhotoFileIDs:      []string{msg.ReplyToMessage.LargestPhoto()},
			PhotoFileSizes:    []int64{msg.ReplyToMessage.LargestPhotoSize()},
			Caption:           msg.ReplyToMessage.Caption,
		}
		if msg.From != nil {
			d.SourceUserID = msg.From.ID
		}
		return d, true
	}

	// Direct mention: bot mentioned in a message that itself carries photos.
	if c.mentionsBot(msg) && msg.HasPhotos() {
		sourceID := msg.MessageID
		d := &Decision{
			Trigger:          config.TriggerDirectMention,
			ChatType:         chatType,
			ConsentScope:     config.ConsentInlineGroup,
			RawChatID:        msg.Chat.ID,
			ThreadID:         msg.ThreadID(),
			ReplyToMessageID: &sourceID,
			PhotoFileIDs:     []string{msg.LargestPhoto()},
			PhotoFileSizes:   []int64{msg.LargestPhotoSize()},
			Caption:          strippedCaption(msg.Caption, c.botUsername),
		}
		if msg.From != nil {
			d.SourceUserID = msg.From.ID
		}
		return d, true
	}

	return nil, false
}

// startsWithBotMention reports whether the message text opens with a mention
// entity targeting the bot. Entity lengths from the platform are not trusted
// exactly; the prefix check is authoritative.
func (c *Classifier) startsWithBotMention(msg *models.Message) bool {
	if msg.Text == "" {
		return false
	}
	hasLeadingMention := false
	for _, e := range msg.Entities {
		if e.Type == "mention" && e.Offset == 0 {
			hasLeadingMention = true
			break
		}
	}
	if !hasLeadingMention {
		return false
	}
	return strings.HasPrefix(strings.ToLower(msg.Text), "@"+strings.ToLower(c.botUsername))
}

// mentionsBot reports whether the bot is mentioned anywhere in the message
// text or caption.
func (c *Classifier) mentionsBot(msg *models.Message) bool {
	needle := "@" + strings.ToLower(c.botUsername)
	if strings.Contains(strings.ToLower(msg.Text), needle) {
		return true
	}
	return strings.Contains(strings.ToLower(msg.Caption), needle)
}

// strippedCaption removes the bot mention from a caption so the estimator
// sees only the meal description.
func strippedCaption(caption, username string) string {
	if caption == "" {
		return ""
	}
	mention := "@" + username
	idx := strings.Index(strings.ToLower(caption), strings.ToLower(mention))
	if idx < 0 {
		return caption
	}
	return strings.TrimSpace(caption[:idx] + caption[idx+len(mention):])
}
