package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/location"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LocationUpdater interface {
	Update(ctx context.Context, fix models.LocationFix) error
}

type LocationHandler struct {
	locations LocationUpdater
	logger    *zap.Logger
	now       func() time.Time
}

func NewLocationHandler(locations LocationUpdater, logger *zap.Logger) *LocationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocationHandler{locations: locations, logger: logger, now: time.Now}
}

func (h *LocationHandler) UpdateLocation(c *gin.Context) {
	var update location.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
		return
	}

	fix := update.Fix(h.now())
	if err := h.locations.Update(c.Request.Context(), fix); err != nil {
		if errors.Is(err, location.ErrInvalidFix) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		h.logger.Error("Failed to store location", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to store location"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"source_id": fix.SourceID,
		"timestamp": fix.Timestamp.UnixMilli(),
	})
}
