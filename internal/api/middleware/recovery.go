package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pulseboard/pulseboard/backend/internal/metrics"
)

const unmatchedRoute = "unmatched"

// Recovery converts a handler panic into a 500 JSON response and counts it per
// route template. With verbose set the log entry also carries the stack and
// redacted request headers.
func Recovery(verbose bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			route := c.FullPath()
			if route == "" {
				route = unmatchedRoute
			}
			metrics.IncHandlerPanic(route)

			entry := GetRequestLogger(c).WithFields(logrus.Fields{
				"method": c.Request.Method,
				"route":  route,
			})
			if verbose {
				entry.WithFields(logrus.Fields{
					"path":    SanitizePath(c.Request.URL.Path),
					"headers": SanitizeHeaders(c.Request.Header),
					"stack":   string(debug.Stack()),
				}).Errorf("handler panic: %v", r)
			} else {
				entry.Errorf("handler panic: %v", r)
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}()
		c.Next()
	}
}
