package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RequestLogger logs each handled request with the request_id. Health and
// metrics probes are logged at debug level.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := GetRequestLogger(c).WithFields(logrus.Fields{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    SanitizePath(c.Request.URL.Path),
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		})
		if isProbe(c.Request.URL.Path) {
			entry.Debug("handled request")
			return
		}
		entry.Info("handled request")
	}
}

func isProbe(path string) bool {
	return path == "/metrics" || strings.HasSuffix(path, "/health")
}
