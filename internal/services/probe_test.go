package services

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/backend/internal/models"
)

func closedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestProbe_HTTPGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/created":
			w.WriteHeader(http.StatusCreated)
		case "/broken":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	p := NewProbeExecutor()
	ctx := context.Background()

	res := p.Probe(ctx, EffectiveCheckConfig{Type: models.CheckTypeHTTPGet, URL: srv.URL, Timeout: time.Second})
	assert.True(t, res.Success)
	assert.Equal(t, "HTTP 200", res.Message)

	res = p.Probe(ctx, EffectiveCheckConfig{Type: models.CheckTypeHTTPGet, URL: srv.URL + "/broken", Timeout: time.Second})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "HTTP 503")

	res = p.Probe(ctx, EffectiveCheckConfig{Type: models.CheckTypeHTTPGet, URL: srv.URL + "/created", Timeout: time.Second, ExpectedStatus: 201})
	assert.True(t, res.Success)

	res = p.Probe(ctx, EffectiveCheckConfig{Type: models.CheckTypeHTTPGet, URL: srv.URL + "/created", Timeout: time.Second})
	assert.False(t, res.Success, "201 does not match the default expected status")
}

func TestProbe_HTTPGetTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	res := NewProbeExecutor().Probe(context.Background(), EffectiveCheckConfig{
		Type:    models.CheckTypeHTTPGet,
		URL:     srv.URL,
		Timeout: 50 * time.Millisecond,
	})
	assert.False(t, res.Success)
	assert.Equal(t, "Timed out", res.Message)
}

func TestProbe_HealthEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/up":
			_, _ = w.Write([]byte(`{"status":"up"}`))
		case "/down":
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"DOWN"}`))
		case "/missing":
			_, _ = w.Write([]byte(`{"healthy":true}`))
		default:
			_, _ = w.Write([]byte(`not json`))
		}
	}))
	defer srv.Close()

	p := NewProbeExecutor()
	probe := func(path string) ProbeResult {
		return p.Probe(context.Background(), EffectiveCheckConfig{Type: models.CheckTypeHealthEndpoint, URL: srv.URL + path, Timeout: time.Second})
	}

	assert.True(t, probe("/up").Success)

	down := probe("/down")
	assert.False(t, down.Success)
	assert.Equal(t, "Health status DOWN", down.Message)

	assert.False(t, probe("/missing").Success)
	assert.False(t, probe("/garbage").Success)
}

func TestProbe_TCPPortAndPing(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	p := NewProbeExecutor()
	ctx := context.Background()

	res := p.Probe(ctx, EffectiveCheckConfig{Type: models.CheckTypeTCPPort, URL: l.Addr().String(), Timeout: time.Second})
	assert.True(t, res.Success)

	res = p.Probe(ctx, EffectiveCheckConfig{Type: models.CheckTypeTCPPort, URL: "tcp://" + l.Addr().String(), Timeout: time.Second})
	assert.True(t, res.Success)

	res = p.Probe(ctx, EffectiveCheckConfig{Type: models.CheckTypePing, URL: l.Addr().String(), Timeout: time.Second})
	assert.True(t, res.Success)
	assert.Equal(t, "Host reachable", res.Message)

	res = p.Probe(ctx, EffectiveCheckConfig{Type: models.CheckTypeTCPPort, URL: closedAddr(t), Timeout: time.Second})
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Message)
}

func TestProbe_UnsupportedType(t *testing.T) {
	res := NewProbeExecutor().Probe(context.Background(), EffectiveCheckConfig{Type: models.CheckTypeNone})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Unsupported")
}

func TestValidateCheckConfig(t *testing.T) {
	assert.NoError(t, ValidateCheckConfig(EffectiveCheckConfig{Type: models.CheckTypeHTTPGet, URL: "https://example.com/health"}))
	assert.ErrorIs(t, ValidateCheckConfig(EffectiveCheckConfig{Type: models.CheckTypeHTTPGet, URL: "example.com"}), ErrInvalidCheckConfig)
	assert.ErrorIs(t, ValidateCheckConfig(EffectiveCheckConfig{Type: models.CheckTypeTCPPort, URL: "db.internal"}), ErrInvalidCheckConfig)
	assert.NoError(t, ValidateCheckConfig(EffectiveCheckConfig{Type: models.CheckTypeTCPPort, URL: "db.internal:5432"}))
	assert.NoError(t, ValidateCheckConfig(EffectiveCheckConfig{Type: models.CheckTypePing, URL: "db.internal"}))
	assert.ErrorIs(t, ValidateCheckConfig(EffectiveCheckConfig{Type: models.CheckTypeNone}), ErrInvalidCheckConfig)
}

func TestPingAddress(t *testing.T) {
	assert.Equal(t, "example.com:80", pingAddress("example.com"))
	assert.Equal(t, "example.com:443", pingAddress("https://example.com/path"))
	assert.Equal(t, "example.com:8443", pingAddress("https://example.com:8443"))
	assert.Equal(t, "10.0.0.1:22", pingAddress("10.0.0.1:22"))
	assert.Equal(t, "", pingAddress(""))
}
