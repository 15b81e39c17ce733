package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja/parser"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// invokerSource calls the wrapper and hands its promise to mark before
// the engine drains queued jobs
const (
	invokerName   = "invoke.js"
	invokerSource = "(function(f, args, mark) { var p = f.apply(undefined, args); mark(p); return p; })"
)

// envNames are the parameters of the wrapper function; env() supplies the
// values in the same order. The trailing names are shadowed as undefined.
var envNames = []string{
	"console",
	"setTimeout", "setInterval", "clearTimeout", "clearInterval",
	"alert", "confirm", "prompt",
	"fetch",
	"require", "process", "module", "exports",
}

// Option customizes a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHTTPClient sets the client used by fetch()
func WithHTTPClient(client *resty.Client) Option {
	return func(s *Session) {
		s.http = client
	}
}

// Session executes exactly one RunRequest in a fresh goja runtime. All
// fields below are owned by the goroutine that calls Run.
type Session struct {
	id     string
	req    RunRequest
	cfg    Config
	logger *zap.Logger
	http   *resty.Client

	vm         *goja.Runtime
	transcript *Transcript
	tracker    *Tracker
	loop       *loop
	surface    *surface

	state      State
	outcome    Outcome
	promise    *goja.Promise
	thrown     bool // top-level body threw before its first await
	rejections []*goja.Promise
	fetches    int
	started    time.Time

	ctx     context.Context // cancelled when the run ends; scopes fetches
	cancel  context.CancelFunc
	expired chan struct{}
}

// NewSession prepares a session; nothing runs until Run is called
func NewSession(id string, req RunRequest, cfg Config, opts ...Option) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		id:         id,
		req:        req,
		cfg:        cfg,
		logger:     zap.NewNop(),
		transcript: NewTranscript(cfg.LogCapacity),
		tracker:    NewTracker(),
		loop:       newLoop(),
		state:      StateIdle,
		outcome:    OutcomeCompleted,
		expired:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("run_id", id))
	return s
}

// ID returns the run identifier
func (s *Session) ID() string {
	return s.id
}

// Run executes the script and blocks until the session completes. The
// only error is ErrTerminated (ctx cancelled) or ErrSessionUsed; script
// failures and timeouts are reported inside the transcript.
func (s *Session) Run(ctx context.Context) (result RunResult, err error) {
	if s.state != StateIdle {
		return RunResult{}, ErrSessionUsed
	}
	if s.req.Timeout <= 0 {
		return RunResult{}, fmt.Errorf("timeout must be positive, got %s", s.req.Timeout)
	}

	s.started = time.Now()
	s.ctx, s.cancel = context.WithCancel(ctx)
	defer s.cancel()
	defer s.loop.close()

	s.vm = goja.New()
	if s.cfg.MaxCallStackSize > 0 {
		s.vm.SetMaxCallStackSize(s.cfg.MaxCallStackSize)
	}
	s.vm.SetPromiseRejectionTracker(s.trackRejection)

	// Both interrupts are hard stops for runaway synchronous code.
	safety := time.AfterFunc(s.req.Timeout, func() {
		close(s.expired)
		s.vm.Interrupt(ErrTimeout)
	})
	defer safety.Stop()
	stopWatch := context.AfterFunc(ctx, func() {
		s.vm.Interrupt(ErrTerminated)
	})
	defer stopWatch()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Sandbox panic recovered", zap.Any("panic", r))
			if ctx.Err() != nil {
				result, err = RunResult{}, ErrTerminated
				return
			}
			s.transcript.appendDiagnostic(OutputRecord{Kind: KindError, Content: fmt.Sprintf("Internal error: %v", r)})
			result, err = s.complete(OutcomeScriptError), nil
		}
	}()

	s.transition(StateRunning)
	if err := s.start(); err != nil {
		return s.fail(ctx, err)
	}
	return s.drive(ctx)
}

// start compiles the wrapper, installs the environment and invokes it.
// A throw before the first await ends the run right away; later
// rejections are handled when the run settles.
func (s *Session) start() error {
	fn, err := s.compile()
	if err != nil {
		return err
	}
	invoke, err := s.invoker()
	if err != nil {
		return err
	}

	str, err := newStringifier(s.vm)
	if err != nil {
		return err
	}
	s.surface = &surface{vm: s.vm, transcript: s.transcript, str: str}

	env := s.env()
	args := make([]any, len(env))
	for i, v := range env {
		args[i] = v
	}

	ret, err := invoke(goja.Undefined(), fn, s.vm.NewArray(args...), s.vm.ToValue(s.markReturned))
	if err != nil {
		return s.classify(err, ErrRuntime)
	}
	if p, ok := ret.Export().(*goja.Promise); ok {
		s.promise = p
		if s.thrown {
			reason := p.Result()
			return &ScriptError{Kind: ErrRuntime, Message: s.surface.str.value(reason), Line: s.lineOf(reason)}
		}
	}
	return nil
}

// invoker compiles the helper that calls the wrapper and reports its
// promise before any queued job runs
func (s *Session) invoker() (goja.Callable, error) {
	val, err := s.vm.RunScript(invokerName, invokerSource)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(val)
	if !ok {
		return nil, fmt.Errorf("invoker did not compile to a function")
	}
	return fn, nil
}

// markReturned runs as soon as the wrapper's synchronous part returns. A
// promise already rejected here was rejected by a throw before any await,
// and ordinary output from jobs queued behind it is dropped.
func (s *Session) markReturned(call goja.FunctionCall) goja.Value {
	if p, ok := call.Argument(0).Export().(*goja.Promise); ok && p.State() == goja.PromiseStateRejected {
		s.thrown = true
		s.transcript.seal()
	}
	return goja.Undefined()
}

// compile wraps the source as the body of an async function. The prefix
// shares line 1 with the source so reported lines match the editor.
func (s *Session) compile() (goja.Value, error) {
	src := "(async function(" + strings.Join(envNames, ", ") + ") {" + s.req.Source + "\n})"

	ast, err := parser.ParseFile(nil, scriptName, src, 0, parser.WithDisableSourceMaps)
	if err != nil {
		var list parser.ErrorList
		if errors.As(err, &list) && len(list) > 0 {
			return nil, &ScriptError{Kind: ErrSyntax, Message: "SyntaxError: " + list[0].Message, Line: list[0].Position.Line}
		}
		return nil, &ScriptError{Kind: ErrSyntax, Message: "SyntaxError: " + err.Error()}
	}

	prg, err := goja.CompileAST(ast, false)
	if err != nil {
		return nil, &ScriptError{Kind: ErrSyntax, Message: "SyntaxError: " + err.Error(), Line: lineFromText(err.Error())}
	}

	val, err := s.vm.RunProgram(prg)
	if err != nil {
		return nil, s.classify(err, ErrSyntax)
	}
	if _, ok := goja.AssertFunction(val); !ok {
		return nil, &ScriptError{Kind: ErrSyntax, Message: "SyntaxError: source did not compile to a function"}
	}
	return val, nil
}

// env returns the values bound to envNames
func (s *Session) env() []goja.Value {
	var fetch goja.Value = goja.Undefined()
	if s.cfg.EnableFetch {
		fetch = s.vm.ToValue(s.fetch)
	}
	return []goja.Value{
		s.surface.console(),
		s.vm.ToValue(s.setTimeout),
		s.vm.ToValue(s.setInterval),
		s.vm.ToValue(s.clearTimer),
		s.vm.ToValue(s.clearTimer),
		s.vm.ToValue(s.surface.alert),
		s.vm.ToValue(s.surface.confirm),
		s.vm.ToValue(s.surface.prompt),
		fetch,
		goja.Undefined(),
		goja.Undefined(),
		goja.Undefined(),
		goja.Undefined(),
	}
}

// drive runs the event loop until the session completes
func (s *Session) drive(ctx context.Context) (RunResult, error) {
	var (
		graceC <-chan time.Time
		poll   *time.Ticker
		pollC  <-chan time.Time
	)
	defer func() {
		if poll != nil {
			poll.Stop()
		}
	}()

	for {
		if done, result, err := s.stopRequested(ctx); done {
			return result, err
		}

		if s.state == StateRunning && s.promiseSettled() {
			s.settle()
			graceC = time.After(s.cfg.GracePeriod)
		}
		s.reportRejections()

		var wake *time.Timer
		var wakeC <-chan time.Time
		if d, ok := s.loop.nextDelay(time.Now()); ok {
			wake = time.NewTimer(d)
			wakeC = wake.C
		}

		select {
		case <-ctx.Done():
			stopTimer(wake)
			return RunResult{}, ErrTerminated
		case <-s.expired:
			stopTimer(wake)
			return s.timeout(), nil
		case <-graceC:
			graceC = nil
			if s.tracker.Len() == 0 {
				stopTimer(wake)
				return s.complete(s.outcome), nil
			}
			s.logger.Debug("Waiting for pending work", zap.Int("pending", s.tracker.Len()))
			poll = time.NewTicker(s.cfg.PollInterval)
			pollC = poll.C
		case <-pollC:
			if s.tracker.Len() == 0 {
				stopTimer(wake)
				return s.complete(s.outcome), nil
			}
		case <-wakeC:
			if err := s.runDueTimers(ctx); err != nil {
				return s.fail(ctx, err)
			}
		case job := <-s.loop.external:
			stopTimer(wake)
			if err := s.runJob(job); err != nil {
				return s.fail(ctx, err)
			}
		}
		stopTimer(wake)
	}
}

// stopRequested gives cancellation and expiry priority over other events
func (s *Session) stopRequested(ctx context.Context) (bool, RunResult, error) {
	select {
	case <-ctx.Done():
		return true, RunResult{}, ErrTerminated
	default:
	}
	select {
	case <-s.expired:
		return true, s.timeout(), nil
	default:
	}
	return false, RunResult{}, nil
}

// runDueTimers fires every timer that is due, in deadline order
func (s *Session) runDueTimers(ctx context.Context) error {
	now := time.Now()
	for {
		if s.stopping(ctx) {
			return nil
		}
		t := s.loop.popDue(now)
		if t == nil {
			return nil
		}
		if t.every == 0 {
			s.tracker.Remove(t.id)
		}
		if _, err := t.fn(goja.Undefined(), t.args...); err != nil {
			if isInterrupt(err) {
				return err
			}
			s.uncaught(err)
		}
		s.reportRejections()
	}
}

// stopping reports whether ctx or the safety timer ended the run
func (s *Session) stopping(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-s.expired:
		return true
	default:
		return false
	}
}

// runJob executes a job posted from another goroutine. Only interrupts
// stop the run; script exceptions were already reported by the job.
func (s *Session) runJob(job func() error) error {
	if err := job(); err != nil && isInterrupt(err) {
		return err
	}
	s.reportRejections()
	return nil
}

// fail handles an error that stopped the current job
func (s *Session) fail(ctx context.Context, err error) (RunResult, error) {
	if isInterrupt(err) {
		if ctx.Err() != nil {
			return RunResult{}, ErrTerminated
		}
		return s.timeout(), nil
	}

	var scriptErr *ScriptError
	if !errors.As(err, &scriptErr) {
		scriptErr = &ScriptError{Kind: ErrRuntime, Message: err.Error()}
	}
	s.logger.Debug("Script failed", zap.Error(scriptErr))
	s.transcript.appendDiagnostic(scriptErr.record())
	if errors.Is(scriptErr, ErrSyntax) {
		return s.complete(OutcomeSyntaxError), nil
	}
	return s.complete(OutcomeScriptError), nil
}

// promiseSettled reports whether the top-level invocation has finished
func (s *Session) promiseSettled() bool {
	return s.promise == nil || s.promise.State() != goja.PromiseStatePending
}

// settle moves Running to Settling, recording a rejection if there was one
func (s *Session) settle() {
	if s.promise != nil && s.promise.State() == goja.PromiseStateRejected {
		reason := s.promise.Result()
		scriptErr := &ScriptError{Kind: ErrRejected, Message: s.surface.str.value(reason), Line: s.lineOf(reason)}
		s.logger.Debug("Script rejected", zap.Error(scriptErr))
		s.transcript.appendDiagnostic(scriptErr.record())
		s.outcome = OutcomeScriptError
	}
	s.transition(StateSettling)
}

// timeout cancels all pending work and completes with a timeout record
func (s *Session) timeout() RunResult {
	s.logger.Debug("Execution timed out",
		zap.Duration("timeout", s.req.Timeout),
		zap.Int64s("pending", s.tracker.Handles()),
	)
	for _, h := range s.loop.clear() {
		s.tracker.Remove(h)
	}
	s.tracker.Reset()
	s.cancel()
	s.transcript.appendDiagnostic(OutputRecord{
		Kind:    KindError,
		Content: fmt.Sprintf("Execution timed out after %dms", s.req.Timeout.Milliseconds()),
	})
	return s.complete(OutcomeTimeout)
}

// complete freezes the transcript
func (s *Session) complete(outcome Outcome) RunResult {
	s.loop.clear()
	s.tracker.Reset()
	s.cancel()
	s.transition(StateCompleted)

	result := RunResult{
		RunID:      s.id,
		Transcript: s.transcript.Snapshot(),
		Outcome:    outcome,
		Duration:   time.Since(s.started),
		Truncated:  s.transcript.Limited(),
	}
	s.logger.Debug("Run completed",
		zap.String("outcome", string(outcome)),
		zap.Int("records", len(result.Transcript)),
		zap.Duration("duration", result.Duration),
	)
	return result
}

func (s *Session) transition(to State) {
	s.logger.Debug("Session state change",
		zap.Stringer("from", s.state),
		zap.Stringer("to", to),
	)
	s.state = to
}

// classify converts an engine error into a ScriptError of the given kind
func (s *Session) classify(err error, kind error) error {
	if isInterrupt(err) {
		return err
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return &ScriptError{Kind: kind, Message: s.describe(ex.Value(), ex.Error()), Line: lineFromText(ex.String())}
	}
	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return &ScriptError{Kind: ErrSyntax, Message: "SyntaxError: " + syntax.Message}
	}
	return &ScriptError{Kind: kind, Message: err.Error(), Line: lineFromText(err.Error())}
}

// describe renders a thrown value, falling back when no surface exists yet
func (s *Session) describe(v goja.Value, fallback string) string {
	if s.surface == nil || v == nil {
		return fallback
	}
	return s.surface.str.value(v)
}

// lineOf reads the script line out of an error's stack property
func (s *Session) lineOf(v goja.Value) (line int) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return 0
	}
	defer func() {
		if r := recover(); r != nil {
			if !isScriptPanic(r) {
				panic(r)
			}
			line = 0
		}
	}()
	stack := obj.Get("stack")
	if stack == nil || goja.IsUndefined(stack) {
		return 0
	}
	return lineFromText(stack.String())
}

// uncaught records an exception thrown by a timer callback
func (s *Session) uncaught(err error) {
	scriptErr, ok := s.classify(err, ErrRuntime).(*ScriptError)
	if !ok {
		return
	}
	rec := scriptErr.record()
	rec.Content = "Uncaught " + rec.Content
	s.transcript.Append(rec.Kind, rec.Content, rec.Line)
}

// trackRejection follows promises rejected without a handler
func (s *Session) trackRejection(p *goja.Promise, op goja.PromiseRejectionOperation) {
	switch op {
	case goja.PromiseRejectionReject:
		s.rejections = append(s.rejections, p)
	case goja.PromiseRejectionHandle:
		for i, r := range s.rejections {
			if r == p {
				s.rejections = append(s.rejections[:i], s.rejections[i+1:]...)
				break
			}
		}
	}
}

// reportRejections records rejections still unhandled after a job drained.
// The top-level promise is reported by settle instead.
func (s *Session) reportRejections() {
	if len(s.rejections) == 0 || s.surface == nil {
		s.rejections = s.rejections[:0]
		return
	}
	for _, p := range s.rejections {
		if p == s.promise {
			continue
		}
		reason := p.Result()
		s.transcript.Append(KindError, "Uncaught (in promise) "+s.surface.str.value(reason), s.lineOf(reason))
	}
	s.rejections = s.rejections[:0]
}

func isInterrupt(err error) bool {
	var ie *goja.InterruptedError
	return errors.As(err, &ie)
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
