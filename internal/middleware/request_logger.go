package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	ua "github.com/mssola/user_agent"
	"github.com/sirupsen/logrus"
)

// RequestLogger logs each request with latency, status and a parsed
// device type. Health checks are skipped to keep the log useful.
func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		parser := ua.New(c.Request.UserAgent())
		deviceType := "desktop"
		if parser.Bot() {
			deviceType = "bot"
		} else if parser.Mobile() {
			deviceType = "mobile"
		}
		browser, _ := parser.Browser()

		entry := logger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"latency_ms":  time.Since(start).Milliseconds(),
			"client_ip":   c.ClientIP(),
			"device_type": deviceType,
			"browser":     browser,
		})

		if len(c.Errors) > 0 {
			entry.Error(c.Errors.String())
			return
		}

		entry.Info("Request handled")
	}
}
