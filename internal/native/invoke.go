package native

import (
	"errors"
	"sync"
)

// ErrUnsupported is returned by the invoker of a platform without native call support
var ErrUnsupported = errors.New("native calls are not supported on this platform")

// Call describes one native invocation
type Call struct {
	Fn    uintptr
	Frame *Frame
	CDecl bool // 32-bit x86 only: caller cleans the stack
	Ret   Type
}

// Outcome is the raw result of a native call
type Outcome struct {
	Int       uint64  // integer return register(s), EDX:EAX on x86
	Float     float64 // floating-point return, decoded at the declared width
	LastError uint32  // OS last-error value captured right after the call
	Exception uint32  // structured exception code, 0 if the call returned normally

	// StackChecked is set when the callee's stack cleanup could be measured
	// (32-bit stdcall). StackDelta is the number of argument bytes the callee
	// removed minus the number it was handed.
	StackChecked bool
	StackDelta   int
}

// Invoker performs native calls
type Invoker interface {
	Invoke(c *Call) (Outcome, error)
}

var (
	defaultOnce    sync.Once
	defaultInvoker Invoker
)

// DefaultInvoker returns the platform invoker
func DefaultInvoker() Invoker {
	defaultOnce.Do(func() {
		defaultInvoker = newPlatformInvoker()
	})
	return defaultInvoker
}
