package middleware

import (
	"net/http"
	"strings"

	"github.com/pulseboard/pulseboard/backend/internal/util"
)

const (
	redacted       = "<redacted>"
	maxLoggedValue = 200
)

// redactedHeaders hold credentials or client addresses and are never logged.
var redactedHeaders = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"x-forwarded-for":     true,
	"x-real-ip":           true,
}

// SanitizeHeaders copies h into a form safe to log. Header values are joined,
// stripped of control characters and truncated.
func SanitizeHeaders(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, vals := range h {
		if redactedHeaders[strings.ToLower(k)] {
			out[k] = redacted
			continue
		}
		out[k] = cleanValue(strings.Join(vals, ", "))
	}
	return out
}

// SanitizePath drops the query string, which may carry tokens, from p.
func SanitizePath(p string) string {
	p, _, _ = strings.Cut(p, "?")
	return cleanValue(p)
}

func cleanValue(v string) string {
	return util.Truncate(util.SanitizeForLog(v), maxLoggedValue)
}
