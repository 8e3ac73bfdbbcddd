package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/pulseboard/pulseboard/backend/internal/logger"
)

func TestRequestIDAddsHeaderAndLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	logger.Init(true, buf)

	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		// Ensure logger exists in context and header is present
		if _, ok := c.Get("logger"); !ok {
			t.Fatalf("expected request-scoped logger in context")
		}
		c.String(200, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("expected response to include X-Request-ID header")
	}
}

func TestRequestIDKeepsInboundUUID(t *testing.T) {
	logger.Init(false, &bytes.Buffer{})
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) { c.String(200, c.GetString(RequestIDKey)) })

	const inbound = "0b8f3c3e-8a52-4f51-9a3e-1f0f5d7c2a10"
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, inbound)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Body.String() != inbound {
		t.Fatalf("expected inbound id to be kept, got %q", w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "not-an-id\nforged")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Body.String() == "not-an-id\nforged" {
		t.Fatalf("malformed inbound id must be replaced")
	}
}
