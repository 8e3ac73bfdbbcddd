package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pulseboard/pulseboard/backend/internal/models"
	"github.com/pulseboard/pulseboard/backend/internal/util"
	"github.com/pulseboard/pulseboard/backend/internal/version"
)

// EffectiveCheckConfig is the probe input after inheritance has been resolved.
type EffectiveCheckConfig struct {
	Type           models.CheckType
	URL            string
	Timeout        time.Duration
	ExpectedStatus int
}

// ProbeResult is the outcome of one check. Every failure is captured here.
type ProbeResult struct {
	Success  bool
	Message  string
	Duration time.Duration
}

// DurationMs returns the probe duration in whole milliseconds.
func (r ProbeResult) DurationMs() int64 {
	return r.Duration.Milliseconds()
}

// Prober runs a single health check.
type Prober interface {
	Probe(ctx context.Context, cfg EffectiveCheckConfig) ProbeResult
}

// healthUpTokens are the values of a health body's status field that count as up.
var healthUpTokens = map[string]bool{
	"UP":      true,
	"OK":      true,
	"HEALTHY": true,
	"PASS":    true,
}

const maxHealthBody = 64 << 10

// ProbeExecutor implements Prober over HTTP and TCP.
type ProbeExecutor struct {
	client *http.Client
	dialer *net.Dialer
}

func NewProbeExecutor() *ProbeExecutor {
	return &ProbeExecutor{
		client: &http.Client{
			// Per-request timeouts come from the context.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		dialer: &net.Dialer{},
	}
}

// ValidateCheckConfig reports configuration errors that make an entity unprobeable.
func ValidateCheckConfig(cfg EffectiveCheckConfig) error {
	switch cfg.Type {
	case models.CheckTypeHTTPGet, models.CheckTypeHealthEndpoint:
		u, err := url.Parse(cfg.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %q is not an http(s) url", ErrInvalidCheckConfig, cfg.URL)
		}
	case models.CheckTypeTCPPort:
		if _, _, err := net.SplitHostPort(hostPort(cfg.URL)); err != nil {
			return fmt.Errorf("%w: %q is not host:port", ErrInvalidCheckConfig, cfg.URL)
		}
	case models.CheckTypePing:
		if pingAddress(cfg.URL) == "" {
			return fmt.Errorf("%w: %q has no host", ErrInvalidCheckConfig, cfg.URL)
		}
	default:
		return fmt.Errorf("%w: check type %s cannot be probed", ErrInvalidCheckConfig, cfg.Type)
	}
	return nil
}

func (p *ProbeExecutor) Probe(ctx context.Context, cfg EffectiveCheckConfig) ProbeResult {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var success bool
	var msg string

	switch cfg.Type {
	case models.CheckTypeHTTPGet:
		success, msg = p.httpGet(ctx, cfg)
	case models.CheckTypeHealthEndpoint:
		success, msg = p.healthEndpoint(ctx, cfg)
	case models.CheckTypeTCPPort:
		success, msg = p.dial(ctx, hostPort(cfg.URL))
	case models.CheckTypePing:
		addr := pingAddress(cfg.URL)
		if addr == "" {
			msg = "Invalid ping target"
			break
		}
		success, msg = p.dial(ctx, addr)
		if success {
			msg = "Host reachable"
		}
	default:
		msg = fmt.Sprintf("Unsupported check type %s", cfg.Type)
	}

	return ProbeResult{Success: success, Message: msg, Duration: time.Since(start)}
}

func (p *ProbeExecutor) httpGet(ctx context.Context, cfg EffectiveCheckConfig) (bool, string) {
	expected := cfg.ExpectedStatus
	if expected == 0 {
		expected = http.StatusOK
	}
	resp, err := p.get(ctx, cfg.URL)
	if err != nil {
		return false, describeError(ctx, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxHealthBody))

	if resp.StatusCode != expected {
		return false, fmt.Sprintf("HTTP %d (expected %d)", resp.StatusCode, expected)
	}
	return true, fmt.Sprintf("HTTP %d", resp.StatusCode)
}

func (p *ProbeExecutor) healthEndpoint(ctx context.Context, cfg EffectiveCheckConfig) (bool, string) {
	resp, err := p.get(ctx, cfg.URL)
	if err != nil {
		return false, describeError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHealthBody))
	if err != nil {
		return false, describeError(ctx, err)
	}

	var payload struct {
		Status interface{} `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false, fmt.Sprintf("HTTP %d: response is not a health document", resp.StatusCode)
	}
	indicator, ok := payload.Status.(string)
	if !ok {
		return false, fmt.Sprintf("HTTP %d: health status field missing", resp.StatusCode)
	}
	indicator = util.Truncate(util.SanitizeForLog(indicator), 64)
	if !healthUpTokens[strings.ToUpper(strings.TrimSpace(indicator))] {
		return false, fmt.Sprintf("Health status %s", indicator)
	}
	return true, fmt.Sprintf("Health status %s", indicator)
}

func (p *ProbeExecutor) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	return p.client.Do(req)
}

func (p *ProbeExecutor) dial(ctx context.Context, addr string) (bool, string) {
	conn, err := p.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false, describeError(ctx, err)
	}
	conn.Close()
	return true, "Connection successful"
}

func describeError(ctx context.Context, err error) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "Timed out"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "DNS lookup failed: " + dnsErr.Err
	}
	return err.Error()
}

// hostPort strips an optional scheme so "tcp://db:5432" and "db:5432" both dial.
func hostPort(target string) string {
	if i := strings.Index(target, "://"); i >= 0 {
		target = target[i+3:]
	}
	return strings.TrimSuffix(target, "/")
}

// pingAddress turns a host, host:port or URL into a dial address. Without an
// explicit port the scheme decides; bare hosts use 80.
func pingAddress(target string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return ""
	}
	if strings.Contains(target, "://") {
		u, err := url.Parse(target)
		if err != nil || u.Hostname() == "" {
			return ""
		}
		port := u.Port()
		if port == "" {
			port = "80"
			if u.Scheme == "https" {
				port = "443"
			}
		}
		return net.JoinHostPort(u.Hostname(), port)
	}
	if _, _, err := net.SplitHostPort(target); err == nil {
		return target
	}
	return net.JoinHostPort(strings.Trim(target, "[]"), "80")
}
