// Package api implements the serve-mode HTTP facade: a local gin server
// exposing dispatch, health, metrics, statistics, and recent logs.
package api

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// ginLogrusLogger returns a gin middleware that logs HTTP requests through
// logrus, with a request ID derived from (or generated into) X-Request-Id.
func ginLogrusLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		requestID := c.Request.Header.Get("X-Request-Id")
		if strings.TrimSpace(requestID) == "" {
			requestID = uuid.NewString()
		}
		c.Writer.Header().Set("X-Request-Id", requestID)

		c.Next()

		latency := time.Since(start).Truncate(time.Millisecond)
		status := c.Writer.Status()

		entry := log.WithFields(log.Fields{
			"request_id": requestID,
			"status":     status,
			"latency":    latency.String(),
			"client_ip":  c.ClientIP(),
			"method":     c.Request.Method,
			"path":       path,
		})
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Debug("request completed")
		}
	}
}

// ginRecovery recovers from handler panics and answers 500 instead of
// dropping the connection.
func ginRecovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("panic recovered: %v\n%s", r, debug.Stack())
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": gin.H{"message": fmt.Sprintf("internal error: %v", r)},
				})
			}
		}()
		c.Next()
	}
}
