package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func observedTracer() (*Tracer, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return New("test", zap.New(core)), logs
}

func TestSpanParentage(t *testing.T) {
	tracer, logs := observedTracer()

	parent, ctx := tracer.StartSpan(context.Background(), "parent")
	child, childCtx := tracer.StartSpan(ctx, "child")

	assert.True(t, strings.HasPrefix(string(parent.TraceID), "trace_"))
	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentID)
	assert.Equal(t, child.SpanID, GetSpanID(childCtx))

	child.SetError(errors.New("boom"))
	child.Finish()
	child.Finish()
	parent.Finish()
	tracer.Close()

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "span completed with error", logs.All()[0].Message)
	assert.Equal(t, "span completed", logs.All()[1].Message)
}

func TestSubmitAfterClose(t *testing.T) {
	tracer, logs := observedTracer()
	tracer.Close()
	tracer.Close()

	span, _ := tracer.StartSpan(context.Background(), "late")
	span.Finish()

	assert.Equal(t, 0, logs.Len())
}

func TestHTTPMiddlewarePropagates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer, logs := observedTracer()

	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	var seen TraceID
	router.GET("/ping", func(c *gin.Context) {
		seen = GetTraceID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(TraceHeader, "trace_upstream")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	tracer.Close()

	assert.Equal(t, TraceID("trace_upstream"), seen)
	assert.Equal(t, "trace_upstream", w.Header().Get(TraceHeader))
	assert.NotEmpty(t, w.Header().Get(SpanHeader))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "GET /ping", fields["operation"])
	assert.Equal(t, "204", fields["http.status"])
}
