// Package models defines the wire and domain types shared across the
// inline-analysis pipeline.
package models

import "encoding/json"

// Update is the platform webhook payload. The schema is deeply optional and
// weakly typed; only the fields the pipeline reads are declared, everything
// else is ignored on decode. Unknown shapes are silently skipped upstream,
// never treated as errors.
type Update struct {
	UpdateID    int64        `json:"update_id"`
	Message     *Message     `json:"message,omitempty"`
	InlineQuery *InlineQuery `json:"inline_query,omitempty"`
}

// Message is a chat message carried by an update.
type Message struct {
	MessageID       int64           `json:"message_id"`
	MessageThreadID *int64          `json:"message_thread_id,omitempty"`
	Chat            Chat            `json:"chat"`
	From            *User           `json:"from,omitempty"`
	MediaGroupID    string          `json:"media_group_id,omitempty"`
	Caption         string          `json:"caption,omitempty"`
	Text            string          `json:"text,omitempty"`
	Entities        []MessageEntity `json:"entities,omitempty"`
	Photo           []PhotoSize     `json:"photo,omitempty"`
	ReplyToMessage  *Message        `json:"reply_to_message,omitempty"`
}

// Chat identifies the conversation an update belongs to.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"` // private, group, supergroup
}

// User is the sender of a message or inline query.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

// MessageEntity marks a span of special text inside a message.
type MessageEntity struct {
	Type   string `json:"type"` // "mention", "bot_command", ...
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

// PhotoSize is one rendition of an uploaded photo. The platform sends
// several sizes per photo; the last entry is the largest.
type PhotoSize struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
}

// InlineQuery is an inline-mode query typed into the message field.
type InlineQuery struct {
	ID       string `json:"id"`
	Query    string `json:"query"`
	ChatType string `json:"chat_type,omitempty"`
	From     *User  `json:"from,omitempty"`
}

// ParseUpdate decodes a webhook payload defensively. A decode failure is
// reported so the dispatcher can ack the platform without retries.
func ParseUpdate(body []byte) (*Update, error) {
	var u Update
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// LargestPhoto returns the file id of the largest rendition, or "" when the
// message carries no photo.
func (m *Message) LargestPhoto() string {
	if m == nil || len(m.Photo) == 0 {
		return ""
	}
	return m.Photo[len(m.Photo)-1].FileID
}

// LargestPhotoSize returns the byte size of the largest rendition, or 0 when
// the message carries no photo or the platform omitted the size.
func (m *Message) LargestPhotoSize() int64 {
	if m == nil || len(m.Photo) == 0 {
		return 0
	}
	return m.Photo[len(m.Photo)-1].FileSize
}

// HasPhotos reports whether the message carries at least one photo.
func (m *Message) HasPhotos() bool {
	return m != nil && len(m.Photo) > 0
}

// ThreadID returns the message thread id, or nil for non-threaded messages.
func (m *Message) ThreadID() *int64 {
	if m == nil {
		return nil
	}
	return m.MessageThreadID
}
