package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/GriffinCanCode/scratchpad/internal/host"
	"github.com/GriffinCanCode/scratchpad/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scratchpad/internal/protocol"
	"github.com/GriffinCanCode/scratchpad/internal/shared/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StatusClientClosedRequest is returned when the caller disconnects before
// its run finishes
const StatusClientClosedRequest = 499

const (
	serviceName = "scratchpad"
	version     = "0.1.0"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	options host.Options
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewHandlers creates a new handler set. Each POST /run gets its own host
// channel built from opts.
func NewHandlers(opts host.Options) *Handlers {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		options: opts,
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// Root handles health check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": serviceName,
		"version": version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{"status": "healthy"}
	if h.metrics != nil {
		body["metrics"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}

// Run executes one script and returns its transcript
func (h *Handlers) Run(c *gin.Context) {
	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, utils.MaxMessageSize))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return
	}

	var req protocol.RunRequest
	if err := protocol.Decode(data, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if req.TimeoutMs < 0 || req.AutoRunDelayMs < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: timeoutMs and autoRunDelayMs must not be negative"})
		return
	}

	channel := host.NewChannel(h.options)
	defer channel.Close()

	future, err := channel.Schedule(req.Sandbox(), req.Delay())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, host.ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	result, err := future.Wait(c.Request.Context())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, protocol.NewRunResponse(result))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.logger.Debug("Client went away before run finished", zap.String("run_id", future.ID))
		c.AbortWithStatusJSON(StatusClientClosedRequest, gin.H{"error": "client closed request"})
	default:
		h.logger.Error("Run failed", zap.String("run_id", future.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// Metrics serves the Prometheus exposition format
func (h *Handlers) Metrics() gin.HandlerFunc {
	if h.metrics == nil {
		return func(c *gin.Context) {
			c.Status(http.StatusNotFound)
		}
	}
	return gin.WrapH(h.metrics.Handler())
}
