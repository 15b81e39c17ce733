package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/scratchpad/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scratchpad/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/scratchpad/internal/sandbox"
	"github.com/GriffinCanCode/scratchpad/internal/shared/id"
	"github.com/GriffinCanCode/scratchpad/internal/shared/utils"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var (
	// ErrAbandoned resolves a future whose run was terminated or superseded.
	ErrAbandoned = errors.New("run abandoned")

	// ErrInvalidRequest wraps validation failures.
	ErrInvalidRequest = errors.New("invalid run request")

	// ErrClosed is returned once the channel has been closed.
	ErrClosed = errors.New("channel closed")
)

// Limits bound what a caller may request
type Limits struct {
	DefaultTimeout time.Duration // used when a request has no timeout
	MaxTimeout     time.Duration // larger timeouts are clamped
	MaxSourceBytes int
}

// DefaultLimits returns the limits used when none are configured
func DefaultLimits() Limits {
	return Limits{
		DefaultTimeout: 5 * time.Second,
		MaxTimeout:     30 * time.Second,
		MaxSourceBytes: utils.MaxSourceSize,
	}
}

// Options configures a Channel. Every field is optional.
type Options struct {
	Config     sandbox.Config
	Limits     Limits
	Logger     *zap.Logger
	Metrics    *monitoring.Metrics
	Tracer     *tracing.Tracer
	HTTPClient *resty.Client
}

// run is the live session of a channel
type run struct {
	cancel context.CancelFunc
	future *Future
}

// pending is a debounced run that has not started yet
type pending struct {
	timer  *time.Timer
	req    sandbox.RunRequest
	future *Future
}

// Channel hosts at most one live session at a time. Starting a new run
// retires the previous one, whose future resolves with ErrAbandoned.
type Channel struct {
	id      id.ChannelID
	cfg     sandbox.Config
	limits  Limits
	logger  *zap.Logger
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
	http    *resty.Client

	mu      sync.Mutex
	live    *run
	pending *pending
	closed  bool
	wg      sync.WaitGroup

	finishing func() // test hook, runs after a session returns and before its result is published
}

// NewChannel creates an idle channel
func NewChannel(opts Options) *Channel {
	limits := opts.Limits
	def := DefaultLimits()
	if limits.DefaultTimeout <= 0 {
		limits.DefaultTimeout = def.DefaultTimeout
	}
	if limits.MaxTimeout <= 0 {
		limits.MaxTimeout = def.MaxTimeout
	}
	if limits.MaxSourceBytes <= 0 {
		limits.MaxSourceBytes = def.MaxSourceBytes
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	chID := id.NewChannelID()
	return &Channel{
		id:      chID,
		cfg:     opts.Config,
		limits:  limits,
		logger:  logger.With(zap.String("channel_id", chID.String())),
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
		http:    opts.HTTPClient,
	}
}

// ID returns the channel identifier
func (c *Channel) ID() id.ChannelID {
	return c.id
}

// Execute retires any live or pending run and starts req immediately
func (c *Channel) Execute(req sandbox.RunRequest) (*Future, error) {
	req, err := c.validate(req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	c.cancelPendingLocked()
	c.retireLocked()

	f := newFuture(id.NewRunID().String())
	c.startLocked(req, f)
	return f, nil
}

// Schedule starts req after delay unless another Schedule, Execute or
// Terminate comes first. The live run keeps going until the delay elapses.
func (c *Channel) Schedule(req sandbox.RunRequest, delay time.Duration) (*Future, error) {
	if delay <= 0 {
		return c.Execute(req)
	}

	req, err := c.validate(req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	c.cancelPendingLocked()

	p := &pending{req: req, future: newFuture(id.NewRunID().String())}
	p.timer = time.AfterFunc(delay, func() { c.fire(p) })
	c.pending = p
	if c.metrics != nil {
		c.metrics.ScheduleAdded()
	}

	c.logger.Debug("Run scheduled", zap.String("run_id", p.future.ID), zap.Duration("delay", delay))
	return p.future, nil
}

// fire starts a debounced run if it is still the pending one
func (c *Channel) fire(p *pending) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != p || c.closed {
		return
	}
	c.pending = nil
	if c.metrics != nil {
		c.metrics.ScheduleRemoved()
	}
	c.retireLocked()
	c.startLocked(p.req, p.future)
}

// Terminate abandons the live and pending runs. Safe in any state.
func (c *Channel) Terminate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelPendingLocked()
	c.retireLocked()
}

// Close terminates and refuses further work, waiting for the last run's
// goroutine to exit
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	c.cancelPendingLocked()
	c.retireLocked()
	c.mu.Unlock()

	c.wg.Wait()
}

// Active reports whether a run is executing
func (c *Channel) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live != nil
}

func (c *Channel) validate(req sandbox.RunRequest) (sandbox.RunRequest, error) {
	if err := utils.ValidateSource(req.Source, c.limits.MaxSourceBytes); err != nil {
		c.rejected("source")
		return req, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	timeout, err := utils.ResolveTimeout(req.Timeout, c.limits.DefaultTimeout, c.limits.MaxTimeout)
	if err != nil {
		c.rejected("timeout")
		return req, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	req.Timeout = timeout
	return req, nil
}

func (c *Channel) rejected(reason string) {
	if c.metrics != nil {
		c.metrics.RunRejected(reason)
	}
}

func (c *Channel) cancelPendingLocked() {
	if c.pending == nil {
		return
	}
	if c.pending.timer.Stop() && c.metrics != nil {
		c.metrics.ScheduleRemoved()
	}
	c.pending.future.resolve(sandbox.RunResult{}, ErrAbandoned)
	c.pending = nil
}

func (c *Channel) retireLocked() {
	if c.live == nil {
		return
	}
	c.live.cancel()
	if c.live.future.resolve(sandbox.RunResult{}, ErrAbandoned) {
		c.logger.Info("Run abandoned", zap.String("run_id", c.live.future.ID))
	}
	c.live = nil
}

func (c *Channel) startLocked(req sandbox.RunRequest, f *Future) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{cancel: cancel, future: f}
	c.live = r

	c.wg.Add(1)
	go c.execute(ctx, r, req)
}

// execute runs one session to completion on its own goroutine
func (c *Channel) execute(ctx context.Context, r *run, req sandbox.RunRequest) {
	defer c.wg.Done()
	defer r.cancel()

	runID := r.future.ID
	log := c.logger.With(
		zap.String("run_id", runID),
		zap.String("source", utils.ShortHash(utils.SourceHash(req.Source))),
	)

	var span *tracing.Span
	if c.tracer != nil {
		span, ctx = c.tracer.StartSpan(ctx, "sandbox.run")
		span.SetTag("run_id", runID)
		defer span.Finish()
	}
	var timer *monitoring.RunTimer
	if c.metrics != nil {
		timer = monitoring.StartRun(c.metrics)
	}

	log.Info("Run started", zap.Duration("timeout", req.Timeout), zap.Int("source_bytes", len(req.Source)))

	opts := []sandbox.Option{sandbox.WithLogger(log)}
	if c.http != nil {
		opts = append(opts, sandbox.WithHTTPClient(c.http))
	}
	result, err := sandbox.NewSession(runID, req, c.cfg, opts...).Run(ctx)
	if c.finishing != nil {
		c.finishing()
	}

	// The future resolves under mu so a Terminate either sees the run as
	// live and abandons it, or comes after the result was delivered.
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.live == r
	if current {
		c.live = nil
	}
	if err == nil && !current {
		err = sandbox.ErrTerminated
	}

	if err != nil {
		if timer != nil {
			timer.Abandon()
		}
		if span != nil {
			span.SetError(err)
		}
		if !errors.Is(err, sandbox.ErrTerminated) {
			log.Error("Run failed", zap.Error(err))
		}
		r.future.resolve(sandbox.RunResult{}, ErrAbandoned)
		return
	}

	if timer != nil {
		timer.Finish(string(result.Outcome), len(result.Transcript), result.Truncated)
	}
	if span != nil {
		span.SetTag("outcome", string(result.Outcome))
	}

	if r.future.resolve(result, nil) {
		log.Info("Run finished",
			zap.String("outcome", string(result.Outcome)),
			zap.Int("records", len(result.Transcript)),
			zap.Duration("duration", result.Duration),
		)
	}
}
