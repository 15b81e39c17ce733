package sandbox

import (
	"math"
	"time"

	"github.com/dop251/goja"
)

// maxDelay mirrors the 32-bit millisecond ceiling browsers apply
const maxDelay = math.MaxInt32 * time.Millisecond

func (s *Session) setTimeout(call goja.FunctionCall) goja.Value {
	return s.schedule(call, false)
}

func (s *Session) setInterval(call goja.FunctionCall) goja.Value {
	return s.schedule(call, true)
}

// schedule registers a timer and records its handle as pending work.
// One-shot handles leave the tracker when they fire; interval handles only
// leave through clearInterval or the end of the run.
func (s *Session) schedule(call goja.FunctionCall, repeat bool) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(s.vm.NewTypeError("The \"callback\" argument must be of type function"))
	}

	delay := toDelay(call.Argument(1))
	var every time.Duration
	if repeat {
		every = max(delay, time.Millisecond)
		delay = every
	}

	var args []goja.Value
	if len(call.Arguments) > 2 {
		args = append(args, call.Arguments[2:]...)
	}

	handle := s.loop.schedule(delay, every, fn, args)
	s.tracker.Add(handle)
	return s.vm.ToValue(handle)
}

// clearTimer backs both clearTimeout and clearInterval. Unknown, fired or
// malformed handles are ignored.
func (s *Session) clearTimer(call goja.FunctionCall) goja.Value {
	if handle, ok := toHandle(call.Argument(0)); ok {
		s.loop.cancel(handle)
		s.tracker.Remove(handle)
	}
	return goja.Undefined()
}

// toDelay coerces a delay argument with ToNumber semantics, so objects go
// through valueOf; NaN and negatives become zero
func toDelay(v goja.Value) time.Duration {
	if v == nil || goja.IsUndefined(v) {
		return 0
	}
	ms := v.ToFloat()
	if math.IsNaN(ms) || ms <= 0 {
		return 0
	}
	d := time.Duration(ms * float64(time.Millisecond))
	if ms >= float64(math.MaxInt32) || d > maxDelay {
		return maxDelay
	}
	return d
}

// toHandle reads a timer handle without ever throwing
func toHandle(v goja.Value) (int64, bool) {
	if v == nil {
		return 0, false
	}
	switch h := v.Export().(type) {
	case int64:
		return h, h > 0
	case float64:
		if h > 0 && h == math.Trunc(h) && h <= math.MaxInt64 {
			return int64(h), true
		}
	}
	return 0, false
}
