package alert

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/config"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermanentWrapping(t *testing.T) {
	base := errors.New("bad request")
	err := Permanent(base)

	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
	assert.Nil(t, Permanent(nil))
}

func TestSMSGatewayPostsToTwilio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "+15550001", r.PostForm.Get("From"))
		assert.Equal(t, "+15550002", r.PostForm.Get("To"))
		assert.Contains(t, r.PostForm.Get("Body"), "ACCIDENT")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	gw, err := NewSMSGateway(config.SMSConfig{AccountSID: "AC123", AuthToken: "secret", From: "+15550001", BaseURL: srv.URL}, time.Second)
	require.NoError(t, err)
	require.NoError(t, gw.Send(context.Background(), "+15550002", "ACCIDENT DETECTED", "evt-1"))
}

func TestSMSGatewayClassifiesErrors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusBadRequest)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	gw, err := NewSMSGateway(config.SMSConfig{AccountSID: "AC1", AuthToken: "t", From: "+1", BaseURL: srv.URL}, time.Second)
	require.NoError(t, err)

	err = gw.Send(context.Background(), "+2", "msg", "evt")
	assert.True(t, IsPermanent(err))

	status.Store(http.StatusTooManyRequests)
	err = gw.Send(context.Background(), "+2", "msg", "evt")
	require.Error(t, err)
	assert.False(t, IsPermanent(err))

	status.Store(http.StatusBadGateway)
	err = gw.Send(context.Background(), "+2", "msg", "evt")
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestSMSGatewayRequiresCredentials(t *testing.T) {
	_, err := NewSMSGateway(config.SMSConfig{AccountSID: "AC1"}, time.Second)
	assert.Error(t, err)
}

func TestTelegramGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		var payload map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "42", payload["chat_id"])
		assert.Equal(t, "hello", payload["text"])
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	gw, err := NewTelegramGateway(config.TelegramConfig{BotToken: "TOKEN", BaseURL: srv.URL}, time.Second)
	require.NoError(t, err)
	require.NoError(t, gw.Send(context.Background(), "42", "hello", "evt"))
}

func TestWebhookGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "evt-9", r.Header.Get("X-Event-ID"))
		var payload webhookPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "evt-9", payload.EventID)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	gw := NewWebhookGateway(time.Second)
	require.NoError(t, gw.Send(context.Background(), srv.URL, "msg", "evt-9"))
	assert.True(t, IsPermanent(gw.Send(context.Background(), "", "msg", "evt-9")))
}

func TestEmailGatewayBuildsMessage(t *testing.T) {
	gw, err := NewEmailGateway(config.EmailConfig{Host: "smtp.example.com", User: "alerts@example.com"})
	require.NoError(t, err)

	var gotTo string
	var gotMsg []byte
	gw.sendMail = func(_ context.Context, to string, msg []byte) error {
		gotTo, gotMsg = to, msg
		return nil
	}

	require.NoError(t, gw.Send(context.Background(), "ops@example.com", "line one\nline two", "evt-1"))
	assert.Equal(t, "ops@example.com", gotTo)
	body := string(gotMsg)
	assert.Contains(t, body, "Subject: ACCIDENT DETECTED\r\n")
	assert.Contains(t, body, "X-Event-ID: evt-1\r\n")
	assert.True(t, strings.HasSuffix(body, "line one\r\nline two"))

	assert.True(t, IsPermanent(gw.Send(context.Background(), "not-an-address", "m", "evt-1")))
}

func TestBuildRoutes(t *testing.T) {
	cfg := config.AlertsConfig{
		Channels:       []string{"log", "SMS", "log", "webhook"},
		AttemptTimeout: time.Second,
		SMS:            config.SMSConfig{AccountSID: "AC1", AuthToken: "t", From: "+1", To: []string{"+2", "+3"}},
		Webhook:        config.WebhookConfig{URL: "http://hooks.local/alert"},
	}

	routes, err := BuildRoutes(cfg, nil)
	require.NoError(t, err)
	require.Len(t, routes, 3)
	assert.Equal(t, "log", routes[0].Channel)
	assert.Equal(t, "sms", routes[1].Channel)
	assert.Equal(t, []string{"+2", "+3"}, routes[1].Destinations)
	assert.Equal(t, "webhook", routes[2].Channel)
}

func TestBuildRoutesErrors(t *testing.T) {
	_, err := BuildRoutes(config.AlertsConfig{Channels: []string{"pager"}}, nil)
	assert.Error(t, err)

	_, err = BuildRoutes(config.AlertsConfig{Channels: []string{"webhook"}}, nil)
	assert.Error(t, err)

	routes, err := BuildRoutes(config.AlertsConfig{}, nil)
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, "log", routes[0].Channel)
}

func TestFormatMessage(t *testing.T) {
	ev := &models.AccidentEvent{
		ID:                "evt-1",
		CameraID:          "cam1",
		PeakConfidence:    88.5,
		VehicleCount:      2,
		ConfirmedAt:       time.Date(2024, 6, 1, 14, 30, 0, 0, time.UTC),
		Location:          &models.LocationFix{Latitude: 28.6139, Longitude: 77.209},
		LocationAvailable: true,
	}

	msg := FormatMessage(ev, "Connaught Place")
	assert.Contains(t, msg, "Location: Connaught Place\n")
	assert.Contains(t, msg, "Coordinates: 28.613900, 77.209000\n")
	assert.Contains(t, msg, "Confidence: 88.50\n")
	assert.Contains(t, msg, "Vehicles Detected: 2\n")
	assert.Contains(t, msg, "Time: 2024-06-01 14:30:00\n")

	ev.LocationAvailable = false
	assert.Contains(t, FormatMessage(ev, "x"), "(last known, may be outdated)")

	ev.Location = nil
	assert.Contains(t, FormatMessage(ev, "Location unavailable"), "Coordinates: unavailable")
}
