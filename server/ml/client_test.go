package ml

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string) config.MLConfig {
	return config.MLConfig{
		BaseURL:    url,
		Timeout:    time.Second,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	}
}

func TestDetectPostsImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/detect", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req DetectRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		raw, err := base64.StdEncoding.DecodeString(req.Image)
		assert.NoError(t, err)
		assert.Equal(t, "jpegbytes", string(raw))

		_, _ = w.Write([]byte(`{"detections":[{"class":"car","confidence":0.9,"bbox":[1,2,3,4]}]}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	defer c.Close()

	dets, err := c.Detect(context.Background(), []byte("jpegbytes"))
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, "car", dets[0]["class"])
	assert.True(t, c.Healthy())
}

func TestDetectAcceptsBareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"label":"bus","score":0.5}]`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	dets, err := c.Detect(context.Background(), []byte("x"))
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, "bus", dets[0]["label"])
}

func TestDetectRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	_, err := c.Detect(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.EqualValues(t, 2, calls.Load())
	assert.False(t, c.Healthy())
}

func TestDetectRejectsOversizedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"detections":[`))
		for i := 0; i < 100; i++ {
			_, _ = w.Write([]byte(`{"class":"car","confidence":0.9},`))
		}
		_, _ = w.Write([]byte(`{"class":"car","confidence":0.9}]}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	defer c.Close()
	c.maxBody = 256

	_, err := c.Detect(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResponseTooLarge)
}

func TestDetectWithoutBaseURL(t *testing.T) {
	c := NewClient(config.MLConfig{}, nil)
	_, err := c.Detect(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	require.NoError(t, c.HealthCheck(context.Background()))
	assert.True(t, c.Healthy())
}
