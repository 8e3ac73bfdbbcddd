package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/backend/internal/logger"
)

func panicRouter(verbose bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Recovery(verbose))
	r.GET("/status/:kind/:id", func(c *gin.Context) {
		panic("probe table corrupted")
	})
	return r
}

func TestRecovery_Verbose(t *testing.T) {
	buf := &bytes.Buffer{}
	logger.Init(true, buf)

	req := httptest.NewRequest(http.MethodGet, "/status/app/a1?token=abc", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	req.Header.Set("User-Agent", "probe\nagent")
	w := httptest.NewRecorder()
	panicRouter(true).ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())

	out := buf.String()
	assert.Contains(t, out, "handler panic: probe table corrupted")
	assert.Contains(t, out, "/status/:kind/:id")
	assert.Contains(t, out, "request_id")
	assert.Contains(t, out, "stack")
	assert.Contains(t, out, redacted)
	assert.NotContains(t, out, "secret-token")
	assert.NotContains(t, out, "token=abc")
}

func TestRecovery_Brief(t *testing.T) {
	buf := &bytes.Buffer{}
	logger.Init(false, buf)

	w := httptest.NewRecorder()
	panicRouter(false).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status/app/a1", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	out := buf.String()
	assert.Contains(t, out, "handler panic: probe table corrupted")
	assert.NotContains(t, out, "goroutine")
}

func TestSanitizeHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Cookie", "session=1")
	h.Set("X-Real-IP", "10.0.0.1")
	h.Add("Accept", "text/html")
	h.Add("Accept", "application/json")
	h.Set("X-Long", strings.Repeat("a", 300))

	got := SanitizeHeaders(h)
	assert.Equal(t, redacted, got["Cookie"])
	assert.Equal(t, redacted, got["X-Real-Ip"])
	assert.Equal(t, "text/html, application/json", got["Accept"])
	assert.Len(t, got["X-Long"], maxLoggedValue)
	assert.Nil(t, SanitizeHeaders(nil))
}

func TestSanitizePath(t *testing.T) {
	assert.Equal(t, "/api/v1/status/app/a1", SanitizePath("/api/v1/status/app/a1?token=x"))
	assert.Equal(t, "/a b", SanitizePath("/a\nb"))
}
