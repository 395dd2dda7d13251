package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/gofrolist/calorie-track-ai-bot/pkg/database"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/version"
)

// liveHandler handles GET /live. Always 200 while the process runs.
func (s *Server) liveHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

// readyHandler handles GET /ready. Ready means the database answers; a
// process without a database configured is ready by definition.
func (s *Server) readyHandler(c echo.Context) error {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()
		if err := s.db.DB().PingContext(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

// healthHandler handles GET /healthz with full component detail.
func (s *Server) healthHandler(c echo.Context) error {
	resp := HealthResponse{
		Status:          "healthy",
		Version:         version.Full(),
		OpenMediaGroups: s.aggregator.Open(),
	}
	code := http.StatusOK

	// Queue depth is informational; an unreachable store does not flip the
	// probe on its own.
	if depth, err := s.queue.Depth(c.Request().Context()); err == nil {
		resp.QueueDepth = &depth
	} else {
		s.logger.Warn("Queue depth unavailable", "error", err)
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()
		dbHealth, err := database.Health(ctx, s.db.DB())
		resp.Database = dbHealth
		if err != nil {
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}

	if s.pool != nil {
		resp.WorkerPool = s.pool.Health()
		if !resp.WorkerPool.IsHealthy {
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}

	return c.JSON(code, resp)
}
