package callback

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	scripterr "hotscript/internal/errors"
	"hotscript/internal/execmem"
	"hotscript/internal/trace"
	"hotscript/internal/vm"
)

// Options are the RegisterCallback option letters
type Options struct {
	Fast  bool // F: run on the current thread instead of a new one
	CDecl bool // C: caller cleans the stack (32-bit only)
}

// ParseOptions reads the option letters, in any order and case. Other
// characters are ignored.
func ParseOptions(s string) Options {
	s = strings.ToUpper(s)
	return Options{Fast: strings.ContainsRune(s, 'F'), CDecl: strings.ContainsRune(s, 'C')}
}

func (o Options) String() string {
	var b strings.Builder
	if o.Fast {
		b.WriteByte('F')
	}
	if o.CDecl {
		b.WriteByte('C')
	}
	return b.String()
}

// Callback is a registered trampoline. It is never freed.
type Callback struct {
	ID         uintptr
	Addr       uintptr // address native code calls
	Func       *vm.Func
	ParamCount int
	Options    Options
	EventInfo  uintptr
}

// Factory creates trampolines and dispatches the calls they receive
type Factory struct {
	Interp *vm.Interp
	Tracer *trace.Recorder
	ABI    ABI

	// Alloc places finished code in executable memory
	Alloc func(code []byte) (uintptr, error)
	// Stub returns the address of the re-entry function every trampoline
	// calls
	Stub func() (uintptr, error)

	mu        sync.Mutex
	templates map[bool]*Template
	byID      map[uintptr]*Callback
}

// IDs are unique across factories so the shared re-entry stub can find the
// owner of any trampoline.
var (
	lastID atomic.Uintptr
	owners sync.Map // uintptr -> *Factory
)

// reenter is the function every trampoline calls through the platform stub
func reenter(block, id uintptr) uintptr {
	f, ok := owners.Load(id)
	if !ok {
		return 0
	}
	return f.(*Factory).Dispatch(id, block)
}

// NewFactory returns a factory for the host ABI whose trampolines re-enter
// through the platform stub
func NewFactory(in *vm.Interp) *Factory {
	f := &Factory{Interp: in, ABI: HostABI(), Alloc: execmem.AllocCode}
	f.Stub = reentryStub
	return f
}

func (f *Factory) template(cdecl bool) (*Template, error) {
	if f.ABI != ABIX86 {
		cdecl = false
	}
	if t, ok := f.templates[cdecl]; ok {
		return t, nil
	}
	t, err := NewTemplate(f.ABI, cdecl)
	if err != nil {
		return nil, err
	}
	if f.templates == nil {
		f.templates = make(map[bool]*Template)
	}
	f.templates[cdecl] = t
	return t, nil
}

// Register validates fn and creates a trampoline for it. paramCount and
// eventInfo may be nil or empty to take their defaults: the function's
// mandatory parameter count and the trampoline's own address.
func (f *Factory) Register(fn vm.Value, options string, paramCount, eventInfo vm.Value) (*Callback, error) {
	uf, ok := f.Interp.ResolveFunc(fn)
	if !ok {
		return nil, scripterr.NewTargetError("Call to nonexistent function.", vm.ToString(fn))
	}
	if uf.HasByRefParams() {
		return nil, scripterr.NewTypeError("Callback functions cannot have ByRef parameters.", uf.Name)
	}
	n := uf.MinParams()
	if !vm.IsEmpty(paramCount) {
		n = int(vm.ToInt64(paramCount))
		if n < uf.MinParams() || (n > uf.MaxParams() && !uf.Variadic) {
			return nil, scripterr.NewTypeError(
				fmt.Sprintf("Parameter count %d is outside %d..%d.", n, uf.MinParams(), uf.MaxParams()), uf.Name)
		}
	}
	opts := ParseOptions(options)

	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.template(opts.CDecl)
	if err != nil {
		return nil, scripterr.New(scripterr.RuntimeError, err.Error()).WithWhat(uf.Name).WithCause(err)
	}
	stub, err := f.Stub()
	if err != nil {
		return nil, scripterr.New(scripterr.RuntimeError, err.Error()).WithWhat(uf.Name).WithCause(err)
	}
	id := lastID.Add(1)
	code, err := t.Instantiate(id, stub, n)
	if err != nil {
		return nil, scripterr.NewTypeError(err.Error(), uf.Name)
	}
	addr, err := f.Alloc(code)
	if err != nil {
		if errors.Is(err, execmem.ErrUnsupported) {
			return nil, scripterr.New(scripterr.RuntimeError, err.Error()).WithWhat(uf.Name).WithCause(err)
		}
		return nil, scripterr.NewMemoryError(uf.Name, err)
	}

	cb := &Callback{ID: id, Addr: addr, Func: uf, ParamCount: n, Options: opts, EventInfo: addr}
	if !vm.IsEmpty(eventInfo) {
		cb.EventInfo = uintptr(vm.ToUint64(eventInfo))
	}
	if f.byID == nil {
		f.byID = make(map[uintptr]*Callback)
	}
	f.byID[id] = cb
	owners.Store(id, f)
	return cb, nil
}

// Lookup returns the callback with the given ID
func (f *Factory) Lookup(id uintptr) (*Callback, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cb, ok := f.byID[id]
	return cb, ok
}

// List returns every registered callback ordered by address
func (f *Factory) List() []*Callback {
	f.mu.Lock()
	out := make([]*Callback, 0, len(f.byID))
	for _, cb := range f.byID {
		out = append(out, cb)
	}
	f.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}
