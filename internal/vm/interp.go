package vm

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"hotscript/internal/errors"
)

const DefaultMaxThreads = 10

// Thread is a logical script thread. The interpreter is single-threaded:
// threads nest (a new one interrupts the current one) rather than run in
// parallel.
type Thread struct {
	ID        int
	Paused    bool
	EventInfo uintptr
}

// Interp is the interpreter host the native-interop builtins run against.
// It is not safe for concurrent use; all methods must be called from the
// goroutine running the script.
type Interp struct {
	MaxThreads int
	Logger     *log.Logger

	// OnThreadError is called after an uncaught error terminates a
	// logical thread. Nil means log only.
	OnThreadError func(err error)

	globals  map[string]*Var
	funcs    map[string]*Func
	builtins map[string]*NativeFunction

	threads      []*Thread
	nextThreadID int
	pausedCount  int
	eventInfo    uintptr
	lastError    uint32

	live map[*Func]int // live activations per function

	nativeDepth int
	pending     error
}

// Option configures an Interp
type Option func(*Interp)

// WithMaxThreads sets the logical thread limit
func WithMaxThreads(n int) Option {
	return func(in *Interp) {
		if n > 0 {
			in.MaxThreads = n
		}
	}
}

// WithLogOutput redirects the interpreter log
func WithLogOutput(w io.Writer) Option {
	return func(in *Interp) {
		in.Logger = log.New(w, "hotscript: ", log.LstdFlags)
	}
}

// NewInterp creates an interpreter with no script threads running
func NewInterp(opts ...Option) *Interp {
	in := &Interp{
		MaxThreads: DefaultMaxThreads,
		Logger:     log.New(os.Stderr, "hotscript: ", log.LstdFlags),
		globals:    make(map[string]*Var),
		funcs:      make(map[string]*Func),
		builtins:   make(map[string]*NativeFunction),
		live:       make(map[*Func]int),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Global returns the named global variable, creating it if needed
func (in *Interp) Global(name string) *Var {
	key := strings.ToLower(name)
	if v, ok := in.globals[key]; ok {
		return v
	}
	v := NewVar(name, nil)
	in.globals[key] = v
	return v
}

// LookupGlobal returns the named global variable if it exists
func (in *Interp) LookupGlobal(name string) (*Var, bool) {
	v, ok := in.globals[strings.ToLower(name)]
	return v, ok
}

// DefineFunc makes a user-defined function callable by name
func (in *Interp) DefineFunc(f *Func) {
	in.funcs[strings.ToLower(f.Name)] = f
}

// FindFunc looks up a user-defined function by name
func (in *Interp) FindFunc(name string) (*Func, bool) {
	f, ok := in.funcs[strings.ToLower(name)]
	return f, ok
}

// ResolveFunc resolves a function reference: a *Func, a function name, or a
// variable holding either. Built-in functions never resolve.
func (in *Interp) ResolveFunc(v Value) (*Func, bool) {
	switch fv := Deref(v).(type) {
	case *Func:
		return fv, true
	case string:
		return in.FindFunc(strings.TrimSpace(fv))
	case *Object:
		if inner, ok := fv.Get("Func"); ok {
			return in.ResolveFunc(inner)
		}
	}
	return nil, false
}

// RegisterBuiltin adds a built-in function
func (in *Interp) RegisterBuiltin(name string, nf *NativeFunction) {
	if nf.Name == "" {
		nf.Name = name
	}
	in.builtins[strings.ToLower(name)] = nf
}

// Builtin looks up a built-in function by name
func (in *Interp) Builtin(name string) (*NativeFunction, bool) {
	nf, ok := in.builtins[strings.ToLower(name)]
	return nf, ok
}

// Builtins returns the names of all registered built-in functions
func (in *Interp) Builtins() []string {
	names := make([]string, 0, len(in.builtins))
	for _, nf := range in.builtins {
		names = append(names, nf.Name)
	}
	return names
}

// CallBuiltin invokes a built-in function by name
func (in *Interp) CallBuiltin(name string, args ...Value) (Value, error) {
	nf, ok := in.Builtin(name)
	if !ok {
		return nil, errors.NewTargetError("Call to nonexistent function.", name)
	}
	if len(args) < nf.MinArgs {
		return nil, errors.NewTypeError("Too few parameters passed to function.", nf.Name)
	}
	if nf.MaxArgs >= 0 && len(args) > nf.MaxArgs {
		return nil, errors.NewTypeError("Too many parameters passed to function.", nf.Name)
	}
	return nf.Function(in, args)
}

// Call invokes a user-defined function with script arguments
func (in *Interp) Call(f *Func, args []Value) (Value, error) {
	a := NewActivation(f)
	if err := a.bind(args); err != nil {
		return nil, err
	}
	return in.Run(a)
}

// NewActivation allocates a fresh activation record for f
func NewActivation(f *Func) *Activation {
	return newActivation(f)
}

// ApplyDefaults assigns declared defaults to formals from index i onward
func (a *Activation) ApplyDefaults(i int) error {
	for ; i < len(a.Func.Params); i++ {
		p := a.Func.Params[i]
		if !p.HasDefault {
			return errors.NewTypeError(fmt.Sprintf("Missing a required parameter: %s", p.Name), a.Func.Name)
		}
		a.Locals[i].Value = p.Default
	}
	return nil
}

// Run executes an already bound activation on the current thread
func (in *Interp) Run(a *Activation) (Value, error) {
	f := a.Func
	if f.Body == nil {
		return nil, nil
	}
	in.live[f]++
	a.Depth = in.live[f]
	defer func() {
		if in.live[f]--; in.live[f] == 0 {
			delete(in.live, f)
		}
	}()

	ret, err := f.Body(in.CurrentThread(), a)
	if err != nil {
		if se, ok := errors.AsScript(err); ok {
			se.AddStackFrame(f.Name, 0)
		}
		return nil, err
	}
	return Deref(ret), nil
}

// LiveActivations returns how many invocations of f are in progress
func (in *Interp) LiveActivations(f *Func) int {
	return in.live[f]
}

// CurrentThread returns the innermost running thread, or nil when idle
func (in *Interp) CurrentThread() *Thread {
	if len(in.threads) == 0 {
		return nil
	}
	return in.threads[len(in.threads)-1]
}

// ThreadCount returns the number of running logical threads
func (in *Interp) ThreadCount() int {
	return len(in.threads)
}

// BeginThread starts a new logical thread interrupting the current one.
// ok is false when MaxThreads threads are already running.
func (in *Interp) BeginThread(eventInfo uintptr) (*Thread, bool) {
	if len(in.threads) >= in.MaxThreads {
		return nil, false
	}
	in.nextThreadID++
	t := &Thread{ID: in.nextThreadID, EventInfo: in.eventInfo}
	in.threads = append(in.threads, t)
	in.eventInfo = eventInfo
	return t, true
}

// EndThread finishes t, resuming the thread it interrupted
func (in *Interp) EndThread(t *Thread) {
	n := len(in.threads)
	if n == 0 || in.threads[n-1] != t {
		in.Logger.Printf("thread %d ended out of order", t.ID)
		return
	}
	in.threads = in.threads[:n-1]
	in.eventInfo = t.EventInfo
	if t.Paused {
		in.pausedCount--
	}
}

// EventInfo returns the current event info value
func (in *Interp) EventInfo() uintptr {
	return in.eventInfo
}

// SwapEventInfo replaces the current event info and returns the old value
func (in *Interp) SwapEventInfo(v uintptr) uintptr {
	old := in.eventInfo
	in.eventInfo = v
	return old
}

// PauseCurrent pauses the current thread
func (in *Interp) PauseCurrent() {
	if t := in.CurrentThread(); t != nil && !t.Paused {
		t.Paused = true
		in.pausedCount++
	}
}

// PausedCount returns the number of paused threads
func (in *Interp) PausedCount() int {
	return in.pausedCount
}

// UnpauseForCallback lifts the pause of the current thread so code running
// inline on it does not block in the pause loop. The returned func restores
// the pause state. Not atomic: relies on the single-threaded interpreter.
func (in *Interp) UnpauseForCallback() (restore func()) {
	t := in.CurrentThread()
	if t == nil || !t.Paused {
		return func() {}
	}
	t.Paused = false
	in.pausedCount--
	return func() {
		t.Paused = true
		in.pausedCount++
	}
}

// SetLastError records the OS last-error value of the most recent native call
func (in *Interp) SetLastError(code uint32) {
	in.lastError = code
}

// LastError returns the value recorded by SetLastError
func (in *Interp) LastError() uint32 {
	return in.lastError
}

// EnterNative marks the start of a native call that may re-enter the script
func (in *Interp) EnterNative() {
	in.nativeDepth++
}

// LeaveNative marks the end of a native call and returns any error parked
// by script code that ran inside it
func (in *Interp) LeaveNative() error {
	if in.nativeDepth > 0 {
		in.nativeDepth--
	}
	err := in.pending
	in.pending = nil
	return err
}

// InNative reports whether a native call is in progress
func (in *Interp) InNative() bool {
	return in.nativeDepth > 0
}

// ParkError stores an error raised inside a callback so the native call
// that triggered it can re-raise it once the callee returns. The first
// error wins.
func (in *Interp) ParkError(err error) {
	if in.pending == nil {
		in.pending = err
	}
}

// ReportThreadError is the top-level handler for an uncaught error: it
// reports the error and lets the logical thread end. The process continues.
func (in *Interp) ReportThreadError(err error) {
	in.Logger.Printf("uncaught error terminated thread: %v", err)
	if in.OnThreadError != nil {
		in.OnThreadError(err)
	}
}
