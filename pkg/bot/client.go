// Package bot is a thin wrapper around the Telegram Bot API covering the
// methods the pipeline needs: sending and editing chat messages, answering
// inline queries, resolving file download URLs, and webhook introspection.
package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultAPIURL = "https://api.telegram.org"

// Client is a thin wrapper around the Telegram Bot API.
type Client struct {
	httpClient *http.Client
	apiURL     string
	token      string
	logger     *slog.Logger
}

// NewClient creates a new Bot API client.
func NewClient(token string) *Client {
	return NewClientWithAPIURL(token, defaultAPIURL)
}

// NewClientWithAPIURL creates a Bot API client that targets a custom base URL.
// Useful for testing with a mock server or a local bot-api instance.
func NewClientWithAPIURL(token, apiURL string) *Client {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiURL:     apiURL,
		token:      token,
		logger:     slog.Default().With("component", "telegram-client"),
	}
}

// APIError is a non-2xx reply from the Bot API.
type APIError struct {
	Method      string
	ErrorCode   int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed: %d %s", e.Method, e.ErrorCode, e.Description)
}

// apiResponse is the Bot API envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// call posts a JSON payload to the named Bot API method and decodes the
// result envelope. out may be nil when the caller ignores the result.
func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.apiURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading %s response: %w", method, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if !envelope.OK {
		return &APIError{Method: method, ErrorCode: envelope.ErrorCode, Description: envelope.Description}
	}
	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}

// SentMessage is the subset of the sendMessage result the pipeline uses.
type SentMessage struct {
	MessageID int64 `json:"message_id"`
}

// SendMessageParams are the sendMessage fields the pipeline sets.
type SendMessageParams struct {
	ChatID           int64  `json:"chat_id"`
	Text             string `json:"text"`
	ParseMode        string `json:"parse_mode,omitempty"`
	MessageThreadID  *int64 `json:"message_thread_id,omitempty"`
	ReplyToMessageID *int64 `json:"reply_to_message_id,omitempty"`
}

// SendMessage sends a chat message, optionally threaded or as a reply.
func (c *Client) SendMessage(ctx context.Context, params SendMessageParams) (*SentMessage, error) {
	var msg SentMessage
	if err := c.call(ctx, "sendMessage", params, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessageText replaces the text of an existing message (placeholder updates).
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}
	return c.call(ctx, "editMessageText", payload, nil)
}

// InlineQueryArticle is a minimal article result for answerInlineQuery.
type InlineQueryArticle struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	InputText   string `json:"-"`
}

// AnswerInlineQuery acknowledges an inline query with article results.
func (c *Client) AnswerInlineQuery(ctx context.Context, queryID string, articles []InlineQueryArticle) error {
	results := make([]map[string]any, 0, len(articles))
	for _, a := range articles {
		results = append(results, map[string]any{
			"type":        a.Type,
			"id":          a.ID,
			"title":       a.Title,
			"description": a.Description,
			"input_message_content": map[string]any{
				"message_text": a.InputText,
			},
		})
	}
	payload := map[string]any{
		"inline_query_id": queryID,
		"results":         results,
		"cache_time":      0,
		"is_personal":     true,
	}
	return c.call(ctx, "answerInlineQuery", payload, nil)
}

// fileInfo is the getFile result.
type fileInfo struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
}

// GetFileURL resolves a file id to a downloadable URL.
func (c *Client) GetFileURL(ctx context.Context, fileID string) (string, error) {
	var info fileInfo
	if err := c.call(ctx, "getFile", map[string]any{"file_id": fileID}, &info); err != nil {
		return "", err
	}
	if info.FilePath == "" {
		return "", fmt.Errorf("getFile returned no file_path for %s", fileID)
	}
	return fmt.Sprintf("%s/file/bot%s/%s", c.apiURL, c.token, info.FilePath), nil
}

// WebhookInfo is the getWebhookInfo result surfaced by the ops endpoint.
type WebhookInfo struct {
	URL                  string `json:"url"`
	PendingUpdateCount   int    `json:"pending_update_count"`
	LastErrorDate        int64  `json:"last_error_date,omitempty"`
	LastErrorMessage     string `json:"last_error_message,omitempty"`
	MaxConnections       int    `json:"max_connections,omitempty"`
	IPAddress            string `json:"ip_address,omitempty"`
	HasCustomCertificate bool   `json:"has_custom_certificate"`
}

// GetWebhookInfo fetches the current webhook registration state.
func (c *Client) GetWebhookInfo(ctx context.Context) (*WebhookInfo, error) {
	var info WebhookInfo
	if err := c.call(ctx, "getWebhookInfo", map[string]any{}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
