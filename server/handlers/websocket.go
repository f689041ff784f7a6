package handlers

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsReadLimit    = 10 * 1024 * 1024
	wsPongWait     = 60 * time.Second
	wsPingInterval = 54 * time.Second
	wsWriteWait    = 10 * time.Second
)

// WebSocketHandler streams frames from one connection into the pipeline and
// answers each with its fused score.
type WebSocketHandler struct {
	pipeline FramePipeline
	logger   *zap.Logger
	upgrader websocket.Upgrader
	timeout  time.Duration
	now      func() time.Time
}

type ClientMessage struct {
	Type      string `json:"type"`
	CameraID  string `json:"camera_id"`
	Data      string `json:"data"`
	Timestamp int64  `json:"timestamp"`
	Seq       uint64 `json:"seq"`
}

type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func NewWebSocketHandler(pipeline FramePipeline, allowedOrigins []string, timeout time.Duration, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		pipeline: pipeline,
		logger:   logger,
		timeout:  timeout,
		now:      time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowedOrigins) == 0 ||
					slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// wsConn serializes writes; gorilla allows one concurrent writer only.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket connection", zap.Error(err))
		return
	}
	conn := &wsConn{conn: raw}
	defer raw.Close()

	clientIP := c.ClientIP()
	h.logger.Info("WebSocket client connected", zap.String("client_ip", clientIP))

	raw.SetReadLimit(wsReadLimit)
	raw.SetReadDeadline(time.Now().Add(wsPongWait))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	ctx, cancel := context.WithCancel(context.Background())
	var inflight sync.WaitGroup
	defer func() {
		cancel()
		inflight.Wait()
	}()

	go h.pingRoutine(ctx, conn)

	for {
		var message ClientMessage
		if err := raw.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket closed unexpectedly", zap.String("client_ip", clientIP), zap.Error(err))
			}
			return
		}
		h.handleMessage(ctx, conn, &inflight, &message)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *wsConn, inflight *sync.WaitGroup, message *ClientMessage) {
	switch message.Type {
	case "frame":
		h.processFrame(ctx, conn, inflight, message)
	case "ping":
		h.sendMessage(conn, "pong", map[string]any{"timestamp": time.Now().Unix()})
	default:
		h.logger.Warn("Unknown message type received", zap.String("type", message.Type))
		h.sendError(conn, "Unknown message type: "+message.Type)
	}
}

// processFrame waits for the result off the read loop so a slow classifier
// never stops newer frames from reaching the latest-wins queue.
func (h *WebSocketHandler) processFrame(ctx context.Context, conn *wsConn, inflight *sync.WaitGroup, message *ClientMessage) {
	request := DetectRequest{
		CameraID:  message.CameraID,
		Image:     message.Data,
		Timestamp: message.Timestamp,
		Seq:       message.Seq,
	}
	frame, err := request.frame(h.now())
	if err != nil {
		h.logger.Warn("Failed to extract image data", zap.Error(err))
		h.sendError(conn, "Invalid image data format")
		return
	}

	inflight.Add(1)
	go func() {
		defer inflight.Done()

		detectCtx := ctx
		if h.timeout > 0 {
			var cancel context.CancelFunc
			detectCtx, cancel = context.WithTimeout(ctx, h.timeout)
			defer cancel()
		}

		started := time.Now()
		score, err := h.pipeline.Detect(detectCtx, frame)
		if err != nil {
			_, msg := detectErrorStatus(err)
			h.sendMessage(conn, "error", map[string]any{
				"message":   msg,
				"camera_id": frame.CameraID,
				"seq":       frame.Seq,
				"timestamp": time.Now().Unix(),
			})
			return
		}
		h.sendMessage(conn, "fused", newDetectResponse(score, time.Since(started)))
	}()
}

func (h *WebSocketHandler) sendMessage(conn *wsConn, messageType string, data any) {
	if err := conn.writeJSON(ServerMessage{Type: messageType, Data: data}); err != nil {
		h.logger.Debug("Failed to send WebSocket message", zap.Error(err))
	}
}

func (h *WebSocketHandler) sendError(conn *wsConn, errorMsg string) {
	h.sendMessage(conn, "error", map[string]any{
		"message":   errorMsg,
		"timestamp": time.Now().Unix(),
	})
}

func (h *WebSocketHandler) pingRoutine(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				h.logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
