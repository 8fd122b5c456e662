package event

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Exception holds what the error stream needs to know about a Go error.
type Exception struct {
	Type    string
	Message string
	Code    string
	Stack   string
}

type errorCoder interface {
	ErrorCode() string
}

type stackTracer interface {
	StackTrace() string
}

// FromError extracts exception context from err. The stack trace is taken
// from the error when it carries one, otherwise it is the caller's stack
// with skip frames removed.
func FromError(err error, skip int) Exception {
	if err == nil {
		return Exception{}
	}

	exc := Exception{
		Type:    TypeName(err),
		Message: err.Error(),
	}

	var coder errorCoder
	if errors.As(err, &coder) {
		exc.Code = coder.ErrorCode()
	}

	var tracer stackTracer
	if errors.As(err, &tracer) {
		exc.Stack = tracer.StackTrace()
	} else {
		exc.Stack = Stack(skip + 1)
	}
	return exc
}

// TypeName names the dynamic type of err. Wrappers created by fmt.Errorf
// and errors.Join are looked through so the name describes the cause.
func TypeName(err error) string {
	for {
		name := strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
		if !strings.HasPrefix(name, "fmt.wrap") && name != "errors.joinError" {
			return name
		}
		var next error
		switch u := err.(type) {
		case interface{ Unwrap() error }:
			next = u.Unwrap()
		case interface{ Unwrap() []error }:
			if errs := u.Unwrap(); len(errs) > 0 {
				next = errs[0]
			}
		}
		if next == nil {
			return name
		}
		err = next
	}
}

// Stack renders the current goroutine's call stack, skipping the given
// number of frames above the caller.
func Stack(skip int) string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return b.String()
}
