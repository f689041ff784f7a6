package ml

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/config"
	"go.uber.org/zap"
)

var (
	ErrNotConfigured    = errors.New("ml service not configured")
	ErrResponseTooLarge = errors.New("ml response too large")
)

// maxResponseBytes caps how much of a detection response is read.
const maxResponseBytes = 8 << 20

// Client talks to the external object-detection service. It satisfies
// classifier.Model.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	config     *ClientConfig
	healthy    atomic.Bool
	maxBody    int64
	stopCh     chan struct{}
	stopOnce   sync.Once
}

type ClientConfig struct {
	Timeout             time.Duration
	MaxRetries          int
	RetryDelay          time.Duration
	HealthCheckInterval time.Duration
}

type DetectRequest struct {
	Image     string `json:"image"`
	Timestamp int64  `json:"timestamp"`
}

// DetectResponse carries the model's raw detections; their schema belongs
// to the model and is normalized by the classifier adapter.
type DetectResponse struct {
	Detections   []map[string]any `json:"detections"`
	ModelVersion string           `json:"model_version,omitempty"`
}

func NewClient(cfg config.MLConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientConfig := &ClientConfig{
		Timeout:             cfg.Timeout,
		MaxRetries:          cfg.MaxRetries,
		RetryDelay:          cfg.RetryDelay,
		HealthCheckInterval: cfg.HealthCheckInterval,
	}
	if clientConfig.Timeout <= 0 {
		clientConfig.Timeout = 2 * time.Second
	}
	if clientConfig.MaxRetries < 0 {
		clientConfig.MaxRetries = 0
	}

	client := &Client{
		baseURL: cfg.BaseURL,
		logger:  logger,
		config:  clientConfig,
		maxBody: maxResponseBytes,
		stopCh:  make(chan struct{}),
		httpClient: &http.Client{
			Timeout: clientConfig.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:       10,
				IdleConnTimeout:    30 * time.Second,
				DisableCompression: true,
			},
		},
	}

	if client.baseURL != "" && clientConfig.HealthCheckInterval > 0 {
		go client.startHealthChecker()
	}

	return client
}

func (c *Client) Detect(ctx context.Context, image []byte) ([]map[string]any, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	request := &DetectRequest{
		Image:     base64.StdEncoding.EncodeToString(image),
		Timestamp: time.Now().UnixMilli(),
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Retrying detection request",
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
		}

		detections, err := c.executeDetectRequest(ctx, request)
		if err == nil {
			c.healthy.Store(true)
			return detections, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	c.healthy.Store(false)
	return nil, fmt.Errorf("detection failed after %d attempts: %w",
		c.config.MaxRetries+1, lastErr)
}

func (c *Client) executeDetectRequest(ctx context.Context, request *DetectRequest) ([]map[string]any, error) {
	requestData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/detect", c.baseURL)
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("User-Agent", "accident-detection/1.0")

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, c.maxBody)
	}

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ML service error (status %d): %s",
			response.StatusCode, string(body))
	}

	return decodeDetections(body)
}

// decodeDetections accepts either {"detections": [...]} or a bare array.
func decodeDetections(body []byte) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var detections []map[string]any
		if err := json.Unmarshal(trimmed, &detections); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return detections, nil
	}

	var resp DetectResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.Detections, nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	url := fmt.Sprintf("%s/health", c.baseURL)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		c.healthy.Store(false)
		return fmt.Errorf("health check failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		c.healthy.Store(false)
		return fmt.Errorf("ML service unhealthy (status %d)", response.StatusCode)
	}

	c.healthy.Store(true)
	return nil
}

// Healthy reports the outcome of the most recent request or health check.
func (c *Client) Healthy() bool {
	return c.healthy.Load()
}

func (c *Client) startHealthChecker() {
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	check := func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
		defer cancel()
		if err := c.HealthCheck(ctx); err != nil {
			c.logger.Warn("ML service health check failed", zap.Error(err))
		} else {
			c.logger.Debug("ML service health check passed")
		}
	}

	check()
	for {
		select {
		case <-ticker.C:
			check()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Client) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}
