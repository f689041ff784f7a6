package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/models"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/queue"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/stats"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type EventLister interface {
	ListEvents(ctx context.Context, limit int) ([]models.EventRecord, error)
}

type StatsSource interface {
	Snapshot() stats.Snapshot
}

type AlertQueue interface {
	QueueStats() queue.Stats
	Channels() []string
}

type HealthChecker interface {
	Healthy() bool
}

// DashboardHandler serves the read-only views: history, stats and health.
type DashboardHandler struct {
	events     EventLister
	stats      StatsSource
	alerts     AlertQueue
	pipeline   FramePipeline
	classifier HealthChecker
	limiter    interface{ GetGlobalStats() map[string]any }
	logger     *zap.Logger
}

func NewDashboardHandler(events EventLister, statsSource StatsSource, alerts AlertQueue, pipeline FramePipeline, classifier HealthChecker, logger *zap.Logger) *DashboardHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardHandler{
		events:     events,
		stats:      statsSource,
		alerts:     alerts,
		pipeline:   pipeline,
		classifier: classifier,
		logger:     logger,
	}
}

// WithRateLimiter adds the limiter's counters to the stats view.
func (h *DashboardHandler) WithRateLimiter(limiter interface{ GetGlobalStats() map[string]any }) *DashboardHandler {
	h.limiter = limiter
	return h
}

func (h *DashboardHandler) Accidents(c *gin.Context) {
	limit := storage.MaxList
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, storage.MaxList)
	}

	records, err := h.events.ListEvents(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list accidents", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load accidents"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accidents": records,
		"count":     len(records),
	})
}

func (h *DashboardHandler) Stats(c *gin.Context) {
	response := gin.H{
		"stats": h.stats.Snapshot(),
	}
	if h.pipeline != nil {
		response["cameras"] = h.pipeline.Cameras()
	}
	if h.alerts != nil {
		response["alerts"] = gin.H{
			"queue":    h.alerts.QueueStats(),
			"channels": h.alerts.Channels(),
		}
	}
	if h.limiter != nil {
		response["rate_limit"] = h.limiter.GetGlobalStats()
	}
	c.JSON(http.StatusOK, response)
}

func (h *DashboardHandler) Health(c *gin.Context) {
	classifier := "disabled"
	if h.classifier != nil {
		classifier = "unavailable"
		if h.classifier.Healthy() {
			classifier = "healthy"
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"timestamp":  time.Now().Unix(),
		"service":    "accident-detection",
		"classifier": classifier,
	})
}
