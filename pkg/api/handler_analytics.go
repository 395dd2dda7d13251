package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/gofrolist/calorie-track-ai-bot/pkg/config"
	"github.com/gofrolist/calorie-track-ai-bot/pkg/models"
)

const dateLayout = "2006-01-02"

// inlineSummaryHandler handles GET /api/v1/analytics/inline-summary.
// Query params: range_start, range_end (YYYY-MM-DD, default last 7 days),
// chat_type.
func (s *Server) inlineSummaryHandler(c echo.Context) error {
	end := c.QueryParam("range_end")
	if end == "" {
		end = time.Now().UTC().Format(dateLayout)
	}
	endDate, err := time.Parse(dateLayout, end)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "range_end must be YYYY-MM-DD")
	}

	start := c.QueryParam("range_start")
	if start == "" {
		start = endDate.AddDate(0, 0, -6).Format(dateLayout)
	}
	startDate, err := time.Parse(dateLayout, start)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "range_start must be YYYY-MM-DD")
	}
	if startDate.After(endDate) {
		return echo.NewHTTPError(http.StatusBadRequest, "range_start must not be after range_end")
	}

	var chatType *config.ChatType
	if raw := c.QueryParam("chat_type"); raw != "" {
		ct := config.ChatType(raw)
		if !ct.IsValid() {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown chat_type")
		}
		chatType = &ct
	}

	buckets, err := s.analytics.Range(c.Request().Context(), start, end, chatType)
	if err != nil {
		return mapServiceError(err)
	}
	if buckets == nil {
		buckets = []*models.InlineAnalyticsDaily{}
	}

	return c.JSON(http.StatusOK, InlineSummaryResponse{
		Range:    DateRange{Start: start, End: end},
		SLA:      SLAInfo{AckTargetMs: s.cfg.Inline.AckTarget.Milliseconds()},
		Accuracy: AccuracyInfo{TolerancePct: s.cfg.Inline.AccuracyTolerancePct},
		Buckets:  buckets,
	})
}

// inlineMetricsHandler handles GET /api/v1/metrics/inline, a snapshot of the
// in-process telemetry window. The optional trigger param scopes the
// snapshot; omitted means all triggers merged.
func (s *Server) inlineMetricsHandler(c echo.Context) error {
	trigger := config.TriggerType(c.QueryParam("trigger"))
	if trigger != "" && !trigger.IsValid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown trigger")
	}
	return c.JSON(http.StatusOK, s.metrics.Snapshot(trigger))
}
