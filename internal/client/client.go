package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/GriffinCanCode/scratchpad/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/scratchpad/internal/protocol"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// APIError is a non-2xx answer from the server
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type errorBody struct {
	Error string `json:"error"`
}

// Options configures a Client
type Options struct {
	BaseURL           string
	Timeout           time.Duration // per request, 0 uses 60s
	RetryCount        int           // retries on transport errors
	RequestsPerSecond float64       // 0 means unlimited
	Logger            *zap.Logger
}

// Client talks to a scratchpad server
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	logger  *zap.Logger
}

// New creates a client for the server at opts.BaseURL
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	r := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("User-Agent", "runjs/1.0").
		SetJSONMarshaler(protocol.Encode).
		SetJSONUnmarshaler(protocol.Decode)

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	breaker := resilience.New("scratchpad-server", resilience.Settings{
		FailureThreshold: 3,
		Cooldown:         10 * time.Second,
		IsFailure:        isServerFault,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		resty:   r,
		limiter: rate.NewLimiter(limit, 1),
		breaker: breaker,
		logger:  logger,
	}
}

// Run submits a script and waits for its transcript
func (c *Client) Run(ctx context.Context, req protocol.RunRequest) (protocol.RunResponse, error) {
	resp, err := resilience.Call(ctx, c.breaker, func(ctx context.Context) (*resty.Response, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return c.do(c.resty.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&protocol.RunResponse{}).
			SetError(&errorBody{}), http.MethodPost, "/run")
	})
	if err != nil {
		return protocol.RunResponse{}, err
	}
	return *resp.Result().(*protocol.RunResponse), nil
}

// Health checks that the server answers
func (c *Client) Health(ctx context.Context) error {
	_, err := resilience.Call(ctx, c.breaker, func(ctx context.Context) (*resty.Response, error) {
		return c.do(c.resty.R().SetContext(ctx).SetError(&errorBody{}), http.MethodGet, "/health")
	})
	return err
}

func (c *Client) do(req *resty.Request, method, path string) (*resty.Response, error) {
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr := &APIError{Status: resp.StatusCode()}
		if body, ok := resp.Error().(*errorBody); ok && body != nil {
			apiErr.Message = body.Error
		}
		c.logger.Debug("Request rejected",
			zap.String("path", path),
			zap.Int("status", apiErr.Status),
			zap.String("error", apiErr.Message),
		)
		return resp, apiErr
	}
	return resp, nil
}

// isServerFault holds only transport errors and 5xx answers against the server
func isServerFault(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError
	}
	return err != nil
}
