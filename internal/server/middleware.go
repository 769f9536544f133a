package server

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/shubh-37/social-autoreply/internal/metrics"
)

const (
	cronSecretHeader = "X-Cron-Secret"
	callerKey        = "caller"

	callerCron  = "cron"
	callerAdmin = "admin"
)

// requireCaller admits a request carrying the cron secret (when allowCron) or
// the admin bearer token (when allowAdmin). An empty configured secret never
// matches.
func requireCaller(cronSecret, adminToken string, allowCron, allowAdmin bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if allowCron && matches(c.GetHeader(cronSecretHeader), cronSecret) {
			c.Set(callerKey, callerCron)
			c.Next()
			return
		}

		if allowAdmin {
			auth := c.GetHeader("Authorization")
			parts := strings.SplitN(auth, " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" && matches(parts[1], adminToken) {
				c.Set(callerKey, callerAdmin)
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}

func matches(given, expected string) bool {
	if expected == "" || given == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(expected)) == 1
}

// requestLogger logs and measures every request
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		status := c.Writer.Status()
		duration := time.Since(start)

		metrics.HTTPRequests.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(duration.Seconds())

		entry := logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     endpoint,
			"status":   status,
			"duration": duration.String(),
			"caller":   c.GetString(callerKey),
		})
		if status >= http.StatusInternalServerError {
			entry.Warn("HTTP request failed")
			return
		}
		entry.Debug("HTTP request")
	}
}
