package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/cache"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/config"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/location"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/models"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/processor"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/queue"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/stats"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/storage"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePipeline struct {
	mu      sync.Mutex
	frames  []models.Frame
	score   models.FusedScore
	err     error
	stopped map[string]bool
}

func (p *fakePipeline) Detect(_ context.Context, frame models.Frame) (models.FusedScore, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, frame)
	if p.err != nil {
		return models.FusedScore{}, p.err
	}
	score := p.score
	score.CameraID = frame.CameraID
	score.Seq = frame.Seq
	score.Timestamp = frame.Timestamp
	return score, nil
}

func (p *fakePipeline) StopCamera(cameraID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped[cameraID]
}

func (p *fakePipeline) Cameras() []processor.CameraStatus {
	return []processor.CameraStatus{{CameraID: "cam-1", State: models.StateIdle}}
}

func (p *fakePipeline) received() []models.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Frame(nil), p.frames...)
}

type fakeAlerts struct{}

func (fakeAlerts) QueueStats() queue.Stats { return queue.Stats{Name: "alerts", MaxCapacity: 8} }
func (fakeAlerts) Channels() []string      { return []string{"log"} }

type staticHealth bool

func (h staticHealth) Healthy() bool { return bool(h) }

func collisionScore() models.FusedScore {
	return models.FusedScore{
		Confidence:     88,
		Classification: models.ClassificationCollisionCandidate,
		VehicleCount:   2,
		Vehicles: []models.Detection{
			{Class: models.ClassCar, Box: models.BoundingBox{X1: 0, Y1: 0, X2: 10, Y2: 10}, Confidence: 0.9},
			{Class: models.ClassTruck, Box: models.BoundingBox{X1: 5, Y1: 0, X2: 15, Y2: 10}, Confidence: 0.8},
		},
	}
}

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestDetectReturnsFusedScore(t *testing.T) {
	pipeline := &fakePipeline{score: collisionScore()}
	h := NewStreamHandler(pipeline, time.Second, nil)
	r := gin.New()
	r.POST("/detect", h.Detect)

	image := base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))
	body := fmt.Sprintf(`{"camera_id":"cam-9","image":"data:image/jpeg;base64,%s","timestamp":1714557600000,"seq":7}`, image)
	w := postJSON(r, "/detect", body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp DetectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.AccidentDetected)
	assert.Equal(t, 2, resp.VehiclesDetected)
	assert.Len(t, resp.Boxes, 2)
	assert.InDelta(t, 88, resp.Confidence, 1e-9)
	assert.Equal(t, "cam-9", resp.CameraID)

	frames := pipeline.received()
	require.Len(t, frames, 1)
	assert.Equal(t, []byte("jpeg-bytes"), frames[0].Image)
	assert.Equal(t, uint64(7), frames[0].Seq)
	assert.Equal(t, time.UnixMilli(1714557600000).UnixMilli(), frames[0].Timestamp.UnixMilli())
}

func TestDetectDefaultsAndBareBase64(t *testing.T) {
	pipeline := &fakePipeline{}
	h := NewStreamHandler(pipeline, time.Second, nil)
	r := gin.New()
	r.POST("/detect", h.Detect)

	image := base64.StdEncoding.EncodeToString([]byte("frame"))
	w := postJSON(r, "/detect", fmt.Sprintf(`{"image_data":"%s"}`, image))
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["accident_detected"])
	assert.Equal(t, []any{}, resp["boxes"])

	frames := pipeline.received()
	require.Len(t, frames, 1)
	assert.Equal(t, DefaultCameraID, frames[0].CameraID)
	assert.False(t, frames[0].Timestamp.IsZero())
}

func TestDetectRejectsBadInput(t *testing.T) {
	h := NewStreamHandler(&fakePipeline{}, time.Second, nil)
	r := gin.New()
	r.POST("/detect", h.Detect)

	assert.Equal(t, http.StatusBadRequest, postJSON(r, "/detect", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, postJSON(r, "/detect", `{"image":""}`).Code)
	assert.Equal(t, http.StatusBadRequest, postJSON(r, "/detect", `{"image":"data:image/png;base64"}`).Code)
	assert.Equal(t, http.StatusBadRequest, postJSON(r, "/detect", `{"image":"***"}`).Code)
}

func TestDetectMapsPipelineErrors(t *testing.T) {
	cases := map[error]int{
		processor.ErrFrameDropped:   http.StatusConflict,
		processor.ErrStopped:        http.StatusServiceUnavailable,
		processor.ErrTooManyCameras: http.StatusServiceUnavailable,
		context.DeadlineExceeded:    http.StatusGatewayTimeout,
		fmt.Errorf("boom"):          http.StatusInternalServerError,
	}
	image := base64.StdEncoding.EncodeToString([]byte("frame"))

	for err, want := range cases {
		h := NewStreamHandler(&fakePipeline{err: err}, time.Second, nil)
		r := gin.New()
		r.POST("/detect", h.Detect)
		assert.Equal(t, want, postJSON(r, "/detect", fmt.Sprintf(`{"image":"%s"}`, image)).Code, err.Error())
	}
}

func TestStopCamera(t *testing.T) {
	h := NewStreamHandler(&fakePipeline{stopped: map[string]bool{"cam-1": true}}, time.Second, nil)
	r := gin.New()
	r.DELETE("/cameras/:id", h.StopCamera)
	r.GET("/cameras", h.Cameras)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/cameras/cam-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/cameras/cam-2", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cameras", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"camera_id":"cam-1"`)
}

func TestUpdateLocation(t *testing.T) {
	store := cache.NewMemoryCache(10, 0, nil)
	defer store.Close()
	enricher := location.NewEnricher(store, config.LocationConfig{StalenessWindow: time.Minute}, nil)
	h := NewLocationHandler(enricher, nil)
	r := gin.New()
	r.POST("/update_location", h.UpdateLocation)

	w := postJSON(r, "/update_location", `{"lat": 28.6139, "lng": 77.2090}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)

	fix, ok := enricher.Lookup(context.Background(), location.DefaultSource)
	require.True(t, ok)
	assert.InDelta(t, 28.6139, fix.Latitude, 1e-9)

	w = postJSON(r, "/update_location", `{"camera_id":"cam-1","lat": 0, "lng": 0}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = postJSON(r, "/update_location", `{"camera_id":"cam-1","lat": 123, "lng": 0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)

	w = postJSON(r, "/update_location", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAccidentsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory(0)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		require.NoError(t, store.SaveEvent(ctx, models.EventRecord{
			EventID:   fmt.Sprintf("evt-%02d", i),
			CameraID:  "cam-1",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Status:    models.DispatchSent,
		}))
	}

	h := NewDashboardHandler(store, stats.NewAggregator(10), fakeAlerts{}, &fakePipeline{}, staticHealth(true), nil)
	r := gin.New()
	r.GET("/accidents", h.Accidents)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	var resp struct {
		Accidents []models.EventRecord `json:"accidents"`
		Count     int                  `json:"count"`
	}
	w := get("/accidents")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 50, resp.Count)
	assert.Equal(t, "evt-59", resp.Accidents[0].EventID)

	w = get("/accidents?limit=3")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Count)
	assert.Equal(t, "evt-57", resp.Accidents[2].EventID)

	w = get("/accidents?limit=500")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 50, resp.Count)

	assert.Equal(t, http.StatusBadRequest, get("/accidents?limit=abc").Code)
	assert.Equal(t, http.StatusBadRequest, get("/accidents?limit=0").Code)
}

func TestStatsAndHealth(t *testing.T) {
	agg := stats.NewAggregator(10)
	agg.FrameReceived("cam-1")
	h := NewDashboardHandler(storage.NewMemory(0), agg, fakeAlerts{}, &fakePipeline{}, staticHealth(false), nil)
	r := gin.New()
	r.GET("/stats", h.Stats)
	r.GET("/health", h.Health)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Stats   stats.Snapshot `json:"stats"`
		Cameras []processor.CameraStatus
		Alerts  struct {
			Queue    queue.Stats `json:"queue"`
			Channels []string    `json:"channels"`
		} `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Stats.Counters.FramesReceived)
	assert.Equal(t, "alerts", resp.Alerts.Queue.Name)
	assert.Equal(t, []string{"log"}, resp.Alerts.Channels)
	assert.Len(t, resp.Cameras, 1)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"classifier":"unavailable"`)
}

func TestWebSocketFrameAndPing(t *testing.T) {
	pipeline := &fakePipeline{score: collisionScore()}
	h := NewWebSocketHandler(pipeline, nil, time.Second, nil)
	r := gin.New()
	r.GET("/ws", h.HandleWebSocket)

	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "ping"}))
	var msg ServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "pong", msg.Type)

	image := base64.StdEncoding.EncodeToString([]byte("frame"))
	require.NoError(t, conn.WriteJSON(ClientMessage{
		Type:     "frame",
		CameraID: "cam-ws",
		Data:     "data:image/jpeg;base64," + image,
		Seq:      3,
	}))

	var fused struct {
		Type string         `json:"type"`
		Data DetectResponse `json:"data"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&fused))
	assert.Equal(t, "fused", fused.Type)
	assert.True(t, fused.Data.AccidentDetected)
	assert.Equal(t, "cam-ws", fused.Data.CameraID)
	assert.Equal(t, uint64(3), fused.Data.Seq)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "frame", Data: "%%%"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "config"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
}
