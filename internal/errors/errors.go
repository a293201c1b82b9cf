// internal/errors/errors.go
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorType represents the class of a script-visible error
type ErrorType string

const (
	TargetError  ErrorType = "TargetError"
	TypeError    ErrorType = "TypeError"
	ValueError   ErrorType = "ValueError"
	OSError      ErrorType = "OSError"
	MemoryError  ErrorType = "MemoryError"
	RegexError   ErrorType = "RegexError"
	RuntimeError ErrorType = "RuntimeError"
)

// StackFrame represents a single frame in the script call stack
type StackFrame struct {
	Function string
	Line     int
}

// ScriptError is the error raised to scripts. It carries a message, the
// name of the function or context that raised it ("what") and optional
// extra data, mirroring the properties of a script exception object.
type ScriptError struct {
	Type      ErrorType
	Message   string
	What      string
	Extra     string
	Code      int64 // native exception or engine error code, 0 if none
	CallStack []StackFrame
	Cause     error
}

// Error implements the error interface
func (e *ScriptError) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s: %s", e.Type, e.Message))
	if e.What != "" {
		sb.WriteString(fmt.Sprintf("\n  what: %s", e.What))
	}
	if e.Extra != "" {
		sb.WriteString(fmt.Sprintf("\n  extra: %s", e.Extra))
	}

	if len(e.CallStack) > 0 {
		sb.WriteString("\nCall Stack:\n")
		for _, frame := range e.CallStack {
			if frame.Line > 0 {
				sb.WriteString(fmt.Sprintf("  at %s (line %d)\n", frame.Function, frame.Line))
			} else {
				sb.WriteString(fmt.Sprintf("  at %s\n", frame.Function))
			}
		}
	}

	return sb.String()
}

// Unwrap returns the underlying cause, if any
func (e *ScriptError) Unwrap() error {
	return e.Cause
}

// New creates an error of the given type
func New(t ErrorType, message string) *ScriptError {
	return &ScriptError{Type: t, Message: message}
}

// Newf creates an error of the given type with a formatted message
func Newf(t ErrorType, format string, args ...interface{}) *ScriptError {
	return &ScriptError{Type: t, Message: fmt.Sprintf(format, args...)}
}

// NewTargetError creates an error for a call target that cannot be resolved
func NewTargetError(message, what string) *ScriptError {
	return &ScriptError{Type: TargetError, Message: message, What: what}
}

// NewTypeError creates a parameter/type error
func NewTypeError(message, what string) *ScriptError {
	return &ScriptError{Type: TypeError, Message: message, What: what}
}

// NewOSError creates an error for a fault raised by native code. The
// exception code is rendered in hex, the way the OS reports it.
func NewOSError(code uint32, what string) *ScriptError {
	return &ScriptError{
		Type:    OSError,
		Message: fmt.Sprintf("0x%08X", code),
		What:    what,
		Code:    int64(code),
	}
}

// NewMemoryError creates an out-of-memory error
func NewMemoryError(what string, cause error) *ScriptError {
	return &ScriptError{Type: MemoryError, Message: "Out of memory.", What: what, Cause: cause}
}

// WithWhat sets the function or context name
func (e *ScriptError) WithWhat(what string) *ScriptError {
	e.What = what
	return e
}

// WithExtra attaches extra data
func (e *ScriptError) WithExtra(extra string) *ScriptError {
	e.Extra = extra
	return e
}

// WithCause records the lower-level error
func (e *ScriptError) WithCause(err error) *ScriptError {
	e.Cause = err
	return e
}

// AddStackFrame adds a single stack frame
func (e *ScriptError) AddStackFrame(function string, line int) *ScriptError {
	e.CallStack = append(e.CallStack, StackFrame{
		Function: function,
		Line:     line,
	})
	return e
}

// AsScript extracts a *ScriptError from err's chain
func AsScript(err error) (*ScriptError, bool) {
	var se *ScriptError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsType reports whether err is a ScriptError of type t
func IsType(err error, t ErrorType) bool {
	se, ok := AsScript(err)
	return ok && se.Type == t
}
