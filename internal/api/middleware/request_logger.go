package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RequestLogger logs one line per request. Server errors log at error, client
// errors at warn, and successful scrapes of skipPaths not at all.
func RequestLogger(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		if skip[c.Request.URL.Path] && status < http.StatusBadRequest {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = SanitizePath(c.Request.URL.Path)
		}
		entry := GetRequestLogger(c).WithFields(logrus.Fields{
			"status":  status,
			"method":  c.Request.Method,
			"route":   route,
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		})
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("handled request")
		case status >= http.StatusBadRequest:
			entry.Warn("handled request")
		default:
			entry.Info("handled request")
		}
	}
}
