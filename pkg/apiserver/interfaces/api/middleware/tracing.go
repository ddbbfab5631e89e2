package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/klog/v2"
)

// Logging is a gin middleware that logs request details along with tracing information.
// The correlation id set by the handler is included when present.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		sc := trace.SpanFromContext(c.Request.Context()).SpanContext()
		keysAndValues := []interface{}{
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"ip", c.ClientIP(),
			"latency", time.Since(start).String(),
			"traceID", sc.TraceID().String(),
			"spanID", sc.SpanID().String(),
		}
		if id := c.Writer.Header().Get("X-Request-ID"); id != "" {
			keysAndValues = append(keysAndValues, "correlationID", id)
		}
		klog.InfoS("HTTP request", keysAndValues...)
	}
}
