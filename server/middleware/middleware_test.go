package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) }
	r.GET("/t", append(handlers, ok)...)
	r.POST("/t", append(handlers, ok)...)
	r.OPTIONS("/t", append(handlers, ok)...)
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthDisabledLetsRequestsThrough(t *testing.T) {
	auth := NewAuthMiddleware("", nil)
	assert.False(t, auth.Enabled())

	w := do(newRouter(auth.RequireAuth(), auth.RequireRole("admin")), httptest.NewRequest(http.MethodGet, "/t", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRequiresValidToken(t *testing.T) {
	auth := NewAuthMiddleware("s3cret", nil)
	r := newRouter(auth.RequireAuth(), auth.RequireRole("operator"))

	w := do(r, httptest.NewRequest(http.MethodGet, "/t", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, do(r, req).Code)

	token, err := auth.GenerateToken("dashboard", "operator", time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/t", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, do(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/t?token="+token, nil)
	assert.Equal(t, http.StatusOK, do(r, req).Code)
}

func TestAuthRejectsWrongRoleAndForeignKey(t *testing.T) {
	auth := NewAuthMiddleware("s3cret", nil)
	r := newRouter(auth.RequireAuth(), auth.RequireRole("admin"))

	token, err := auth.GenerateToken("dashboard", "operator", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/t", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, do(r, req).Code)

	other, err := NewAuthMiddleware("other", nil).GenerateToken("x", "admin", time.Hour)
	require.NoError(t, err)
	_, err = auth.ValidateToken(other)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthExpiredToken(t *testing.T) {
	auth := NewAuthMiddleware("s3cret", nil)
	token, err := auth.GenerateToken("dashboard", "admin", -time.Minute)
	require.NoError(t, err)

	_, err = auth.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestRateLimiterBucket(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil)
	defer rl.Shutdown()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	r := newRouter(rl.RateLimit())
	get := func() int { return do(r, httptest.NewRequest(http.MethodGet, "/t", nil)).Code }

	assert.Equal(t, http.StatusOK, get())
	assert.Equal(t, http.StatusOK, get())
	assert.Equal(t, http.StatusTooManyRequests, get())

	// Fractional refills accumulate.
	now = now.Add(500 * time.Millisecond)
	assert.Equal(t, http.StatusTooManyRequests, get())
	now = now.Add(500 * time.Millisecond)
	assert.Equal(t, http.StatusOK, get())

	assert.Equal(t, 1, rl.GetGlobalStats()["active_clients"])
	now = now.Add(time.Hour)
	rl.evictIdle(10 * time.Minute)
	assert.Equal(t, 0, rl.GetGlobalStats()["active_clients"])
}

func TestInputValidationRequiresJSON(t *testing.T) {
	r := newRouter(InputValidation())

	req := httptest.NewRequest(http.MethodPost, "/t", strings.NewReader("x=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusUnsupportedMediaType, do(r, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/t", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	assert.Equal(t, http.StatusOK, do(r, req).Code)
}

func TestRequestSizeLimit(t *testing.T) {
	r := newRouter(RequestSizeLimit(4))

	req := httptest.NewRequest(http.MethodPost, "/t", strings.NewReader("0123456789"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, do(r, req).Code)
}

func TestCORSPreflight(t *testing.T) {
	r := newRouter(CORS([]string{"https://ops.example"}))

	req := httptest.NewRequest(http.MethodOptions, "/t", nil)
	req.Header.Set("Origin", "https://ops.example")
	w := do(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://ops.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/t", nil)
	req.Header.Set("Origin", "https://evil.example")
	assert.Equal(t, "null", do(r, req).Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryReturns500(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(nil))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := do(r, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
