package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures a request/reply round trip
type Timer struct {
	start   time.Time
	metrics *Metrics
	topic   string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, topic string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		topic:   topic,
	}
}

// Stop stops the timer and records the duration under outcome
func (t *Timer) Stop(outcome string) time.Duration {
	duration := time.Since(t.start)
	t.metrics.RecordRequest(t.topic, outcome, duration)
	return duration
}
