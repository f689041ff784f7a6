package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/models"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/processor"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DefaultCameraID names frames that arrive without a camera id.
const DefaultCameraID = "default"

var errEmptyImage = errors.New("empty image data")

// FramePipeline is the part of the processing pipeline the HTTP surface uses.
type FramePipeline interface {
	Detect(ctx context.Context, frame models.Frame) (models.FusedScore, error)
	StopCamera(cameraID string) bool
	Cameras() []processor.CameraStatus
}

type StreamHandler struct {
	pipeline FramePipeline
	logger   *zap.Logger
	timeout  time.Duration
	now      func() time.Time
}

type DetectRequest struct {
	CameraID string `json:"camera_id"`
	Image    string `json:"image"`
	// ImageData is accepted for older clients.
	ImageData string `json:"image_data"`
	Timestamp int64  `json:"timestamp"`
	Seq       uint64 `json:"seq"`
}

type DetectResponse struct {
	models.FusedScore
	AccidentDetected bool                 `json:"accident_detected"`
	VehiclesDetected int                  `json:"vehicles_detected"`
	Boxes            []models.BoundingBox `json:"boxes"`
	ProcessingTime   int64                `json:"processing_time_ms"`
}

func NewStreamHandler(pipeline FramePipeline, timeout time.Duration, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		pipeline: pipeline,
		logger:   logger,
		timeout:  timeout,
		now:      time.Now,
	}
}

func (h *StreamHandler) Detect(c *gin.Context) {
	startTime := time.Now()

	var request DetectRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.logger.Warn("Invalid request format", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	frame, err := request.frame(h.now())
	if err != nil {
		h.logger.Warn("Failed to decode image data", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image data"})
		return
	}

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	score, err := h.pipeline.Detect(ctx, frame)
	if err != nil {
		status, message := detectErrorStatus(err)
		h.logger.Warn("Frame detection failed",
			zap.String("camera_id", frame.CameraID),
			zap.Uint64("seq", frame.Seq),
			zap.String("client_ip", c.ClientIP()),
			zap.Error(err))
		c.JSON(status, gin.H{"error": message})
		return
	}

	c.JSON(http.StatusOK, newDetectResponse(score, time.Since(startTime)))
}

func (h *StreamHandler) Cameras(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cameras": h.pipeline.Cameras()})
}

func (h *StreamHandler) StopCamera(c *gin.Context) {
	cameraID := c.Param("id")
	if !h.pipeline.StopCamera(cameraID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Camera not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"camera_id": cameraID, "stopped": true})
}

func newDetectResponse(score models.FusedScore, elapsed time.Duration) DetectResponse {
	boxes := make([]models.BoundingBox, 0, len(score.Vehicles))
	for _, v := range score.Vehicles {
		boxes = append(boxes, v.Box)
	}
	return DetectResponse{
		FusedScore:       score,
		AccidentDetected: score.Classification == models.ClassificationCollisionCandidate,
		VehiclesDetected: score.VehicleCount,
		Boxes:            boxes,
		ProcessingTime:   elapsed.Milliseconds(),
	}
}

func detectErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, processor.ErrFrameDropped):
		return http.StatusConflict, "Frame superseded by a newer frame"
	case errors.Is(err, processor.ErrStopped):
		return http.StatusServiceUnavailable, "Camera stream stopped"
	case errors.Is(err, processor.ErrTooManyCameras):
		return http.StatusServiceUnavailable, "Camera limit reached"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Processing timeout"
	default:
		return http.StatusInternalServerError, "Processing failed"
	}
}

func (r DetectRequest) frame(now time.Time) (models.Frame, error) {
	data := r.Image
	if data == "" {
		data = r.ImageData
	}
	image, err := decodeImage(data)
	if err != nil {
		return models.Frame{}, err
	}

	frame := models.Frame{
		CameraID:  r.CameraID,
		Timestamp: now,
		Image:     image,
		Seq:       r.Seq,
	}
	if frame.CameraID == "" {
		frame.CameraID = DefaultCameraID
	}
	if r.Timestamp > 0 {
		frame.Timestamp = time.UnixMilli(r.Timestamp)
	}
	return frame, nil
}

// decodeImage accepts a data URL or a bare base64 payload.
func decodeImage(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if strings.HasPrefix(data, "data:") {
		idx := strings.Index(data, ",")
		if idx < 0 {
			return nil, fmt.Errorf("invalid data URL format")
		}
		data = data[idx+1:]
	}
	if data == "" {
		return nil, errEmptyImage
	}

	image, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		if raw, rawErr := base64.RawStdEncoding.DecodeString(data); rawErr == nil {
			return raw, nil
		}
		return nil, fmt.Errorf("invalid base64 image: %w", err)
	}
	return image, nil
}
