package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLogger logs basic request information along with the request_id and,
// when the gate ran, the applied verdict action.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		entry := GetRequestLogger(c)
		fields := map[string]interface{}{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    SanitizePath(c.Request.URL.Path),
			"latency": latency.String(),
			"client":  c.ClientIP(),
		}
		if verdict, ok := c.Get("verdict"); ok {
			fields["verdict"] = verdict
		}
		entry.WithFields(fields).Info("handled request")
	}
}
