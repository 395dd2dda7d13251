// Calorie bot backend server. Exposes the Telegram webhook ingress and the
// analytics API, and runs the estimate worker pool draining the Redis queue.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/gofrolist/calorie-track-ai-bot/pkg/api"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/bot"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/config"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/database"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/estimator"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/notice"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/objectstore"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/privacy"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/queue"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/services"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/telemetry"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/trigger"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/version"
)

// Exit codes: 0 clean shutdown, 1 startup/config failure, 2 unrecoverable
// runtime failure (queue store disconnect beyond the retry budget).
const (
	exitOK      = 0
	exitStartup = 1
	exitRuntime = 2
)

// resolvePodID determines the replica identifier for worker naming.
// Priority: POD_ID env > HOSTNAME env > "local"
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func setupLogging(cfg *config.Config) {
	if cfg.IsProd() {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
		return
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func main() {
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return exitStartup
	}
	setupLogging(cfg)

	podID := resolvePodID()
	slog.Info("Starting calorie bot",
		"version", version.Full(),
		"env", cfg.Env,
		"http_port", cfg.HTTPPort,
		"pod_id", podID)

	ctx := context.Background()

	// Redis backs both the estimate queue and the permission notice store.
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("Invalid REDIS_URL", "error", err)
		return exitStartup
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		if err := redisClient.Close(); err != nil {
			slog.Error("Error closing Redis client", "error", err)
		}
	}()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancel()
		slog.Error("Failed to connect to Redis", "error", err)
		return exitStartup
	}
	cancel()
	slog.Info("Connected to Redis")

	dbClient, err := database.NewClient(ctx, database.DefaultConfig(cfg.DatabaseURL))
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		return exitStartup
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// Object store is optional; without it photo URLs resolve through the
	// platform file API only.
	store, err := objectstore.NewStore(ctx, cfg.ObjectStore)
	if err != nil {
		slog.Error("Failed to initialize object store", "error", err)
		return exitStartup
	}
	if store != nil {
		slog.Info("Object store initialized", "bucket", cfg.ObjectStore.Bucket)
	}

	botClient := bot.NewClient(cfg.Telegram.Token)
	if cfg.Telegram.APIURL != "" {
		botClient = bot.NewClientWithAPIURL(cfg.Telegram.Token, cfg.Telegram.APIURL)
	}

	mealService := services.NewMealService(dbClient.DB())
	analyticsService := services.NewAnalyticsService(dbClient.DB(), cfg.Inline.AccuracyTolerancePct)
	retention := services.NewRetentionService(services.DefaultRetentionConfig(), mealService)
	retention.Start(ctx)
	defer retention.Stop()
	slog.Info("Services initialized")

	metrics := telemetry.NewRegistry(cfg.Inline)
	jobQueue := queue.NewJobQueue(redisClient, cfg.Queue.QueueName)

	workerPool := queue.NewWorkerPool(podID, cfg.Queue, queue.WorkerDeps{
		Queue:     jobQueue,
		Estimator: estimator.NewOpenAIEstimator(cfg.OpenAI),
		Photos:    objectstore.NewResolver(store, botClient),
		Meals:     mealService,
		Delivery:  bot.NewChatDelivery(botClient),
		Metrics:   metrics,
		Analytics: analyticsService,
	})
	if err := workerPool.Start(ctx); err != nil {
		slog.Error("Failed to start worker pool", "error", err)
		return exitStartup
	}

	httpServer := api.NewServer(api.Dependencies{
		Config:     cfg,
		Queue:      jobQueue,
		Classifier: trigger.NewClassifier(cfg.Telegram.Username),
		Notices:    notice.NewStore(notice.NewRedisKV(redisClient), cfg.Inline.PermissionNoticeTTL),
		Hasher:     privacy.NewHasher(cfg.IdentityHashSalt),
		Metrics:    metrics,
		Analytics:  analyticsService,
		Bot:        botClient,
		DB:         dbClient,
		Pool:       workerPool,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.HTTPPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Calorie bot started successfully",
		"pod_id", podID,
		"workers", cfg.Queue.WorkerCount)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	exitCode := exitOK
	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
		exitCode = exitRuntime
	case err := <-workerPool.Fatal():
		slog.Error("Worker pool reported unrecoverable error", "error", err)
		exitCode = exitRuntime
	}

	// Graceful shutdown: workers drain their in-flight jobs first, then the
	// HTTP server stops accepting updates.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		workerPool.Stop()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-shutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded, in-flight jobs remain on the queue")
	}

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
	return exitCode
}
