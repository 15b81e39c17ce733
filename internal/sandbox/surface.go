package sandbox

import (
	"regexp"
	"strconv"

	"github.com/dop251/goja"
)

// scriptName is the file name user code is compiled under
const scriptName = "script.js"

var stackLinePattern = regexp.MustCompile(`script\.js:(\d+):\d+`)

// surface replaces the console and dialog functions for one run and
// redirects everything they receive into the transcript
type surface struct {
	vm         *goja.Runtime
	transcript *Transcript
	str        *stringifier
}

// console builds the console object handed to the script
func (s *surface) console() *goja.Object {
	console := s.vm.NewObject()
	console.Set("log", s.makeConsoleFunc(KindLog))
	console.Set("info", s.makeConsoleFunc(KindLog))
	console.Set("debug", s.makeConsoleFunc(KindLog))
	console.Set("warn", s.makeConsoleFunc(KindWarn))
	console.Set("error", s.makeConsoleFunc(KindError))
	return console
}

// makeConsoleFunc creates a console function writing records of kind
func (s *surface) makeConsoleFunc(kind Kind) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		s.transcript.Append(kind, s.str.join(call.Arguments), s.callerLine())
		return goja.Undefined()
	}
}

func (s *surface) alert(call goja.FunctionCall) goja.Value {
	s.transcript.Append(KindLog, "[alert] "+s.str.value(call.Argument(0)), s.callerLine())
	return goja.Undefined()
}

func (s *surface) confirm(call goja.FunctionCall) goja.Value {
	s.transcript.Append(KindLog, "[confirm] "+s.str.value(call.Argument(0)), s.callerLine())
	return s.vm.ToValue(true)
}

func (s *surface) prompt(call goja.FunctionCall) goja.Value {
	content := "[prompt] " + s.str.value(call.Argument(0))
	answer := ""
	if def := call.Argument(1); !goja.IsUndefined(def) && !goja.IsNull(def) {
		answer = s.str.value(def)
		content += " (default: " + answer + ")"
	}
	s.transcript.Append(KindLog, content, s.callerLine())
	return s.vm.ToValue(answer)
}

// callerLine finds the innermost user-code frame on the current stack
func (s *surface) callerLine() int {
	frames := s.vm.CaptureCallStack(8, nil)
	for i := range frames {
		if frames[i].SrcName() == scriptName {
			return frames[i].Position().Line
		}
	}
	return 0
}

// lineFromText extracts the first script line number from a rendered stack
func lineFromText(text string) int {
	m := stackLinePattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	line, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return line
}
