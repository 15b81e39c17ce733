package sandbox

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/dop251/goja"
)

var promiseType = reflect.TypeOf((*goja.Promise)(nil))

// renderer tries to turn a value into text. ok is false when the value
// lacks the capability the renderer handles.
type renderer func(v goja.Value) (out string, ok bool)

// stringifier renders arbitrary script values for the transcript. Checks
// run in a fixed order: primitive, thenable, error, structured; anything
// left falls back to plain string conversion.
type stringifier struct {
	vm        *goja.Runtime
	stringify goja.Callable
	chain     []renderer
}

// newStringifier captures JSON.stringify before user code can replace it
func newStringifier(vm *goja.Runtime) (*stringifier, error) {
	json := vm.Get("JSON")
	if json == nil || goja.IsUndefined(json) {
		return nil, errors.New("JSON global unavailable")
	}
	stringify, ok := goja.AssertFunction(json.ToObject(vm).Get("stringify"))
	if !ok {
		return nil, errors.New("JSON.stringify is not callable")
	}

	s := &stringifier{vm: vm, stringify: stringify}
	s.chain = []renderer{
		s.primitive,
		s.thenable,
		s.errorValue,
		s.structured,
	}
	return s, nil
}

// join renders every argument and joins them with single spaces
func (s *stringifier) join(args []goja.Value) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = s.value(arg)
	}
	return strings.Join(parts, " ")
}

// value renders one value
func (s *stringifier) value(v goja.Value) string {
	for _, render := range s.chain {
		if out, ok := render(v); ok {
			return out
		}
	}
	return s.plain(v)
}

func (s *stringifier) primitive(v goja.Value) (string, bool) {
	if v == nil {
		return "undefined", true
	}
	if _, isObject := v.(*goja.Object); isObject {
		return "", false
	}
	return v.String(), true
}

func (s *stringifier) thenable(v goja.Value) (out string, ok bool) {
	obj := v.(*goja.Object)
	if obj.ExportType() == promiseType {
		p := obj.Export().(*goja.Promise)
		switch p.State() {
		case goja.PromiseStateFulfilled:
			return fmt.Sprintf("Promise {<fulfilled>: %s}", s.value(p.Result())), true
		case goja.PromiseStateRejected:
			return fmt.Sprintf("Promise {<rejected>: %s}", s.value(p.Result())), true
		default:
			return "Promise {<pending>}", true
		}
	}

	defer s.swallow(&ok)
	if _, callable := goja.AssertFunction(obj.Get("then")); callable {
		return "[object Thenable]", true
	}
	return "", false
}

func (s *stringifier) errorValue(v goja.Value) (out string, ok bool) {
	obj := v.(*goja.Object)
	if obj.ClassName() != "Error" {
		return "", false
	}
	defer s.swallow(&ok)
	return obj.String(), true
}

func (s *stringifier) structured(v goja.Value) (string, bool) {
	res, err := s.stringify(goja.Undefined(), v, goja.Undefined(), s.vm.ToValue(2))
	if err != nil {
		s.reinterrupt(err)
		return "", false
	}
	if res == nil || goja.IsUndefined(res) {
		return "", false
	}
	return res.String(), true
}

// plain is the last resort; it never lets a user toString escape
func (s *stringifier) plain(v goja.Value) (out string) {
	defer func() {
		if r := recover(); r != nil {
			if !isScriptPanic(r) {
				panic(r)
			}
			out = "[object Object]"
			if obj, ok := v.(*goja.Object); ok {
				out = "[object " + obj.ClassName() + "]"
			}
		}
	}()
	return v.String()
}

// swallow turns a script exception raised by a getter or toString into a
// failed capability check. Anything else keeps unwinding.
func (s *stringifier) swallow(ok *bool) {
	if r := recover(); r != nil {
		if !isScriptPanic(r) {
			panic(r)
		}
		*ok = false
	}
}

// isScriptPanic reports whether a recovered value is a thrown script value
// rather than an interrupt or a Go fault
func isScriptPanic(r any) bool {
	switch r.(type) {
	case *goja.Exception, goja.Value:
		return true
	}
	return false
}

// reinterrupt restores an interrupt consumed by a nested call so the
// running script still stops.
func (s *stringifier) reinterrupt(err error) {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		s.vm.Interrupt(interrupted.Value())
	}
}
