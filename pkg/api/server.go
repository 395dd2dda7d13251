// Package api exposes the HTTP surface: the webhook dispatcher, the
// analytics endpoints, and health probes.
package api

import (
	"context"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/gofrolist/calorie-track-ai-bot/pkg/aggregator"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/bot"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/config"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/database"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/models"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/notice"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/privacy"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/queue"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/telemetry"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/trigger"
)

// Enqueuer pushes validated jobs onto the durable queue and reports its
// backlog for health detail.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *models.EstimateJob) (string, error)
	Depth(ctx context.Context) (int64, error)
}

// AnalyticsStore records accepted requests and serves range queries over the
// daily rollups.
type AnalyticsStore interface {
	RecordRequest(ctx context.Context, trigger config.TriggerType, chatType config.ChatType, ackLatencyMs float64)
	RecordPermissionBlock(ctx context.Context, trigger config.TriggerType, chatType config.ChatType)
	Range(ctx context.Context, start, end string, chatType *config.ChatType) ([]*models.InlineAnalyticsDaily, error)
}

// BotAPI is the slice of the platform client the dispatcher uses.
type BotAPI interface {
	SendMessage(ctx context.Context, params bot.SendMessageParams) (*bot.SentMessage, error)
	AnswerInlineQuery(ctx context.Context, queryID string, articles []bot.InlineQueryArticle) error
	GetWebhookInfo(ctx context.Context) (*bot.WebhookInfo, error)
}

// PoolReporter exposes worker pool health for the health endpoint.
type PoolReporter interface {
	Health() *queue.PoolHealth
}

// Dependencies bundles the collaborators the server wires together.
type Dependencies struct {
	Config     *config.Config
	Queue      Enqueuer
	Classifier *trigger.Classifier
	Notices    *notice.Store
	Hasher     *privacy.Hasher
	Metrics    *telemetry.Registry
	Analytics  AnalyticsStore
	Bot        BotAPI
	DB         *database.Client // optional
	Pool       PoolReporter     // optional
}

// Server is the HTTP API server.
type Server struct {
	echo       *echo.Echo
	srv        *http.Server
	cfg        *config.Config
	queue      Enqueuer
	classifier *trigger.Classifier
	aggregator *aggregator.Aggregator
	notices    *notice.Store
	hasher     *privacy.Hasher
	metrics    *telemetry.Registry
	analytics  AnalyticsStore
	bot        BotAPI
	db         *database.Client
	pool       PoolReporter
	logger     *slog.Logger
}

// NewServer creates the API server and registers its routes. The media-group
// aggregator is owned by the server: finalized albums re-enter the dispatch
// path asynchronously.
func NewServer(deps Dependencies) *Server {
	s := &Server{
		echo:       echo.New(),
		cfg:        deps.Config,
		queue:      deps.Queue,
		classifier: deps.Classifier,
		notices:    deps.Notices,
		hasher:     deps.Hasher,
		metrics:    deps.Metrics,
		analytics:  deps.Analytics,
		bot:        deps.Bot,
		db:         deps.DB,
		pool:       deps.Pool,
		logger:     slog.Default().With("component", "api-server"),
	}
	s.aggregator = aggregator.New(deps.Config.Inline, s.dispatchFinalizedGroup)
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.POST("/bot", s.webhookHandler)
	s.echo.GET("/bot/webhook-info", s.webhookInfoHandler)

	s.echo.GET("/api/v1/analytics/inline-summary", s.inlineSummaryHandler)
	s.echo.GET("/api/v1/metrics/inline", s.inlineMetricsHandler)

	s.echo.GET("/live", s.liveHandler)
	s.echo.GET("/ready", s.readyHandler)
	s.echo.GET("/healthz", s.healthHandler)
}

// ServeHTTP lets tests drive the router directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start begins serving on the given address. Blocks until shutdown.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{Addr: addr, Handler: s.echo}
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests and closes the aggregator.
func (s *Server) Shutdown(ctx context.Context) error {
	s.aggregator.Close()
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
