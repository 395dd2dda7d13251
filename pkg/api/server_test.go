package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gofrolist/calorie-track-ai-bot/pkg/bot"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/config"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/models"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/notice"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/privacy"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/telemetry"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/trigger"
)

// fakeQueue records enqueued jobs.
type fakeQueue struct {
	mu   sync.Mutex
	jobs []*models.EstimateJob
	err  error
}

func (f *fakeQueue) Enqueue(ctx context.Context, job *models.EstimateJob) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if err := job.Validate(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return job.JobID, nil
}

func (f *fakeQueue) Depth(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.jobs)), nil
}

func (f *fakeQueue) all() []*models.EstimateJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.EstimateJob(nil), f.jobs...)
}

// fakeAnalytics records rollup calls and serves canned range results.
type fakeAnalytics struct {
	mu       sync.Mutex
	requests int
	blocks   int
	buckets  []*models.InlineAnalyticsDaily
	gotStart string
	gotEnd   string
}

func (f *fakeAnalytics) RecordRequest(ctx context.Context, trigger config.TriggerType, chatType config.ChatType, ackLatencyMs float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
}

func (f *fakeAnalytics) RecordPermissionBlock(ctx context.Context, trigger config.TriggerType, chatType config.ChatType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks++
}

func (f *fakeAnalytics) Range(ctx context.Context, start, end string, chatType *config.ChatType) ([]*models.InlineAnalyticsDaily, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotStart, f.gotEnd = start, end
	return f.buckets, nil
}

// fakeBot records sent messages and inline answers.
type fakeBot struct {
	mu       sync.Mutex
	sent     []bot.SendMessageParams
	answers  []string
	answerTx []string
	sendErr  error
	nextID   int64
}

func (f *fakeBot) SendMessage(ctx context.Context, params bot.SendMessageParams) (*bot.SentMessage, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, params)
	return &bot.SentMessage{MessageID: 1000 + f.nextID}, nil
}

func (f *fakeBot) AnswerInlineQuery(ctx context.Context, queryID string, articles []bot.InlineQueryArticle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, queryID)
	for _, a := range articles {
		f.answerTx = append(f.answerTx, a.InputText)
	}
	return nil
}

func (f *fakeBot) GetWebhookInfo(ctx context.Context) (*bot.WebhookInfo, error) {
	return &bot.WebhookInfo{URL: "https://bot.example.com/bot", PendingUpdateCount: 2}, nil
}

// memoryKV is an in-memory permission notice backend.
type memoryKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memoryKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = value
	return nil
}

func (m *memoryKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryKV) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type testEnv struct {
	server    *Server
	queue     *fakeQueue
	bot       *fakeBot
	analytics *fakeAnalytics
	metrics   *telemetry.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	inline := config.DefaultInlineConfig()
	inline.MediaGroupWindow = 40 * time.Millisecond
	inline.MediaGroupQuiet = 15 * time.Millisecond

	cfg := &config.Config{
		Env:      "dev",
		Telegram: config.TelegramConfig{Username: "CalorieTrackAI_bot"},
		Queue:    config.DefaultQueueConfig(),
		Inline:   inline,
	}

	q := &fakeQueue{}
	b := &fakeBot{}
	a := &fakeAnalytics{}
	metrics := telemetry.NewRegistry(inline)

	server := NewServer(Dependencies{
		Config:     cfg,
		Queue:      q,
		Classifier: trigger.NewClassifier(cfg.Telegram.Username),
		Notices:    notice.NewStore(&memoryKV{}, inline.PermissionNoticeTTL),
		Hasher:     privacy.NewHasher("test-salt"),
		Metrics:    metrics,
		Analytics:  a,
		Bot:        b,
	})
	t.Cleanup(func() { server.aggregator.Close() })

	return &testEnv{server: server, queue: q, bot: b, analytics: a, metrics: metrics}
}

func (env *testEnv) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

const groupReplyMentionUpdate = `{
	"update_id": 7001,
	"message": {
		"message_id": 200,
		"message_thread_id": 55,
		"chat": {"id": -100500600, "type": "supergroup"},
		"from": {"id": 777, "username": "hungry_dev"},
		"text": "@CalorieTrackAI_bot fail this please",
		"entities": [{"type": "mention", "offset": 0, "length": 18}],
		"reply_to_message": {
			"message_id": 123,
			"chat": {"id": -100500600, "type": "supergroup"},
			"photo": [{"file_id": "file-failure-1", "width": 1280, "height": 960}]
		}
	}
}`

func TestWebhook_GroupReplyMention(t *testing.T) {
	env := newTestEnv(t)

	rec := env.post(t, "/bot", groupReplyMentionUpdate)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp WebhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "reply_mention", resp.TriggerType)
	assert.NotEmpty(t, resp.JobID)

	jobs := env.queue.all()
	require.Len(t, jobs, 1)
	job := jobs[0]
	assert.Equal(t, config.TriggerReplyMention, job.TriggerType)
	assert.Equal(t, config.ChatTypeSupergroup, job.ChatType)
	require.NotNil(t, job.ReplyToMessageID)
	assert.Equal(t, int64(123), *job.ReplyToMessageID)
	require.NotNil(t, job.ThreadID)
	assert.Equal(t, int64(55), *job.ThreadID)
	assert.True(t, job.Metadata.FailureDMRequired)
	assert.Equal(t, []string{"file-failure-1"}, job.PhotoFileIDs)
	assert.NotEqual(t, int64(0), job.Metadata.PlaceholderMessageID)

	// First group interaction sends the privacy notice plus the placeholder,
	// both into thread 55 of the originating chat.
	require.Len(t, env.bot.sent, 2)
	for _, msg := range env.bot.sent {
		assert.Equal(t, int64(-100500600), msg.ChatID)
		require.NotNil(t, msg.MessageThreadID)
		assert.Equal(t, int64(55), *msg.MessageThreadID)
	}
	assert.Contains(t, env.bot.sent[0].Text, "Privacy notice")
}

func TestWebhook_PermissionNoticeOnlyOncePerTTL(t *testing.T) {
	env := newTestEnv(t)

	env.post(t, "/bot", groupReplyMentionUpdate)
	firstSends := len(env.bot.sent)

	env.post(t, "/bot", groupReplyMentionUpdate)
	secondSends := len(env.bot.sent) - firstSends

	assert.Equal(t, 2, firstSends, "notice plus placeholder")
	assert.Equal(t, 1, secondSends, "placeholder only within TTL")
}

func TestWebhook_PrivateInlineQuery(t *testing.T) {
	env := newTestEnv(t)

	body := `{
		"update_id": 7002,
		"inline_query": {
			"id": "INLINE-PVT-1",
			"chat_type": "private",
			"query": "{\"file_id\":\"pvt-file-1\"}",
			"from": {"id": 42}
		}
	}`
	rec := env.post(t, "/bot", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp WebhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "inline_query", resp.TriggerType)

	require.Equal(t, []string{"INLINE-PVT-1"}, env.bot.answers)
	require.Len(t, env.bot.answerTx, 1)
	assert.Contains(t, env.bot.answerTx[0], "Privacy notice")
	assert.Contains(t, env.bot.answerTx[0], "View the inline usage guide")

	jobs := env.queue.all()
	require.Len(t, jobs, 1)
	assert.Equal(t, config.ConsentInlinePrivate, jobs[0].ConsentScope)
	assert.True(t, jobs[0].Metadata.PrivacyNotice)
	assert.Equal(t, "INLINE-PVT-1", jobs[0].Metadata.InlineQueryID)
}

func TestWebhook_PhotoOverLimitIs400(t *testing.T) {
	env := newTestEnv(t)

	body := `{
		"update_id": 7003,
		"inline_query": {
			"id": "INLINE-PVT-2",
			"chat_type": "private",
			"query": "{\"file_ids\":[\"f1\",\"f2\",\"f3\",\"f4\",\"f5\",\"f6\"]}",
			"from": {"id": 42}
		}
	}`
	rec := env.post(t, "/bot", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Maximum 5 photos")
	assert.Empty(t, env.queue.all())
}

func TestWebhook_OversizedPhotoIs400(t *testing.T) {
	env := newTestEnv(t)

	body := `{
		"update_id": 7004,
		"message": {
			"message_id": 300,
			"chat": {"id": 42, "type": "private"},
			"from": {"id": 42},
			"photo": [{"file_id": "huge-file", "width": 4096, "file_size": 25165824}]
		}
	}`
	rec := env.post(t, "/bot", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "20 MB")
	assert.Empty(t, env.queue.all())
}

func TestWebhook_UnsupportedMIMETypeIs400(t *testing.T) {
	env := newTestEnv(t)

	body := `{
		"update_id": 7005,
		"inline_query": {
			"id": "INLINE-PVT-3",
			"chat_type": "private",
			"query": "{\"file_id\":\"anim-1\",\"mime_type\":\"image/gif\"}",
			"from": {"id": 42}
		}
	}`
	rec := env.post(t, "/bot", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported photo type")
	assert.Empty(t, env.queue.all())
}

func TestWebhook_UnparseableBodyIsIgnored(t *testing.T) {
	env := newTestEnv(t)

	rec := env.post(t, "/bot", "{not json")
	require.Equal(t, http.StatusOK, rec.Code, "platform must not retry")
	assert.Contains(t, rec.Body.String(), `"ignored"`)
}

func TestWebhook_UnclassifiableUpdateIsIgnored(t *testing.T) {
	env := newTestEnv(t)

	rec := env.post(t, "/bot", `{"update_id": 1, "message": {"message_id": 2, "chat": {"id": 5, "type": "private"}, "text": "hello"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ignored"`)
	assert.Empty(t, env.queue.all())
}

func TestWebhook_AlbumBuffersThenDispatches(t *testing.T) {
	env := newTestEnv(t)

	album := func(messageID int, caption string, fileID string) string {
		cap := ""
		if caption != "" {
			cap = `"caption": "` + caption + `",`
		}
		return `{
			"update_id": ` + jsonInt(8000+messageID) + `,
			"message": {
				"message_id": ` + jsonInt(messageID) + `,
				"chat": {"id": 42, "type": "private"},
				"from": {"id": 42},
				"media_group_id": "g123",
				` + cap + `
				"photo": [{"file_id": "` + fileID + `", "width": 1280}]
			}
		}`
	}

	rec := env.post(t, "/bot", album(11, "Chicken pasta", "file-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"buffered"`)

	env.post(t, "/bot", album(12, "", "file-2"))
	env.post(t, "/bot", album(13, "", "file-3"))

	require.Eventually(t, func() bool {
		return len(env.queue.all()) == 1
	}, time.Second, 10*time.Millisecond)

	job := env.queue.all()[0]
	assert.Equal(t, []string{"file-1", "file-2", "file-3"}, job.PhotoFileIDs)
	assert.Equal(t, "Chicken pasta", job.Caption)
	assert.Equal(t, config.TriggerPrivatePhoto, job.TriggerType)
}

func jsonInt(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestAnalyticsSummary(t *testing.T) {
	env := newTestEnv(t)
	env.analytics.buckets = []*models.InlineAnalyticsDaily{{
		Date:         "2025-01-01",
		ChatType:     config.ChatTypeGroup,
		RequestCount: 5,
		FailureReasons: []models.FailureReasonCount{
			{Reason: config.FailureProcessingError, Count: 1},
		},
	}}

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/analytics/inline-summary?range_start=2025-01-01&range_end=2025-01-07&chat_type=group", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp InlineSummaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, DateRange{Start: "2025-01-01", End: "2025-01-07"}, resp.Range)
	assert.Equal(t, "2025-01-01", env.analytics.gotStart, "range_start drives the bucket query")
	assert.Equal(t, "2025-01-07", env.analytics.gotEnd, "range_end drives the bucket query")
	assert.Equal(t, int64(3000), resp.SLA.AckTargetMs)
	assert.Equal(t, 5.0, resp.Accuracy.TolerancePct)
	require.Len(t, resp.Buckets, 1)
	assert.Equal(t, int64(5), resp.Buckets[0].RequestCount)
	require.Len(t, resp.Buckets[0].FailureReasons, 1)
	assert.Equal(t, config.FailureProcessingError, resp.Buckets[0].FailureReasons[0].Reason)
}

func TestAnalyticsSummary_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		path string
	}{
		{"bad range_start", "/api/v1/analytics/inline-summary?range_start=nope&range_end=2025-01-07"},
		{"bad range_end", "/api/v1/analytics/inline-summary?range_end=01-07-2025"},
		{"start after end", "/api/v1/analytics/inline-summary?range_start=2025-02-01&range_end=2025-01-07"},
		{"bad chat type", "/api/v1/analytics/inline-summary?chat_type=channel"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			rec := httptest.NewRecorder()
			env.server.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestInlineMetricsSnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.metrics.RecordResultLatency(config.TriggerReplyMention, 15000)
	env.metrics.RecordPermissionBlock(config.TriggerReplyMention, config.ChatTypeGroup)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics/inline?trigger=reply_mention", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap models.InlineMetricsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(1), snap.PermissionBlocks)
	assert.Equal(t, int64(1), snap.PermissionBlocksBy[config.ChatTypeGroup])
	assert.GreaterOrEqual(t, snap.ResultP95Ms, 15000.0)
}

func TestWebhookInfo(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/bot/webhook-info", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bot.example.com")
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/live", "/ready", "/healthz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		env.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestHealthReportsQueueDepth(t *testing.T) {
	env := newTestEnv(t)
	env.post(t, "/bot", groupReplyMentionUpdate)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.QueueDepth)
	assert.Equal(t, int64(1), *resp.QueueDepth)
}

func TestWebhook_QueueDownIs503(t *testing.T) {
	env := newTestEnv(t)
	env.queue.err = context.DeadlineExceeded

	rec := env.post(t, "/bot", groupReplyMentionUpdate)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebhook_RequestRecordedInAnalytics(t *testing.T) {
	env := newTestEnv(t)

	env.post(t, "/bot", groupReplyMentionUpdate)

	env.analytics.mu.Lock()
	defer env.analytics.mu.Unlock()
	assert.Equal(t, 1, env.analytics.requests)
}
