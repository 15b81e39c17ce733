package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection. Paths are
// labelled by route template to keep cardinality bounded.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqSize := c.Request.ContentLength
		if reqSize < 0 {
			reqSize = 0
		}

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		respSize := int64(c.Writer.Size())
		if respSize < 0 {
			respSize = 0
		}

		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start), reqSize, respSize)
	}
}

// RunTimer measures one run from start to finish
type RunTimer struct {
	start   time.Time
	metrics *Metrics
}

// StartRun marks a run active and starts timing it
func StartRun(metrics *Metrics) *RunTimer {
	metrics.RunStarted()
	return &RunTimer{start: time.Now(), metrics: metrics}
}

// Finish records the outcome of the run
func (t *RunTimer) Finish(outcome string, records int, limited bool) {
	t.metrics.RunFinished(outcome, time.Since(t.start), records, limited)
}

// Abandon records a run that produced no result
func (t *RunTimer) Abandon() {
	t.metrics.RunAbandoned()
}
