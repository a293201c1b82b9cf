//go:build (linux || darwin || freebsd) && (amd64 || arm64)

package native

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"

	"github.com/ebitengine/purego"
)

// purego passes at most this many integer-register and stack words
const maxPuregoArgs = 15

// checkFrame rejects frames whose stack part purego cannot pass
func checkFrame(f *Frame) error {
	l, intRegs := f.LayoutSysV(), SysVIntRegs
	if runtime.GOARCH == "arm64" {
		l, intRegs = f.LayoutAAPCS64(), AAPCS64IntRegs
	}
	if limit := maxPuregoArgs - intRegs; len(l.Stack) > limit {
		return fmt.Errorf("too many native arguments (%d on the stack, limit %d)", len(l.Stack), limit)
	}
	return nil
}

// puregoInvoker calls through purego.RegisterFunc with a signature built
// from the frame's kinds. There is no fault containment here: a callee that
// faults takes the process down, and LastError is always 0.
type puregoInvoker struct {
	mu    sync.Mutex
	cache map[string]reflect.Value
}

func newPlatformInvoker() Invoker {
	return &puregoInvoker{cache: make(map[string]reflect.Value)}
}

func goType(t Type) reflect.Type {
	if !t.ByRef {
		switch t.Kind {
		case KindFloat:
			return reflect.TypeOf(float32(0))
		case KindDouble:
			return reflect.TypeOf(float64(0))
		}
	}
	return reflect.TypeOf(uintptr(0))
}

func (p *puregoInvoker) bind(c *Call) (reflect.Value, error) {
	var key strings.Builder
	fmt.Fprintf(&key, "%x:%s", c.Fn, c.Ret)
	in := make([]reflect.Type, c.Frame.Len())
	for i := range in {
		t := c.Frame.Arg(i).Type
		in[i] = goType(t)
		key.WriteString("," + t.String())
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if fn, ok := p.cache[key.String()]; ok {
		return fn, nil
	}
	ptr := reflect.New(reflect.FuncOf(in, []reflect.Type{goType(c.Ret)}, false))
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("cannot bind native function: %v", r)
			}
		}()
		purego.RegisterFunc(ptr.Interface(), c.Fn)
	}()
	if err != nil {
		return reflect.Value{}, err
	}
	fn := ptr.Elem()
	p.cache[key.String()] = fn
	return fn, nil
}

func (p *puregoInvoker) Invoke(c *Call) (Outcome, error) {
	if c.Fn == 0 {
		return Outcome{}, fmt.Errorf("native call to a nil function pointer")
	}
	if err := checkFrame(c.Frame); err != nil {
		return Outcome{}, err
	}
	fn, err := p.bind(c)
	if err != nil {
		return Outcome{}, err
	}

	args := make([]reflect.Value, c.Frame.Len())
	for i := range args {
		t := c.Frame.Arg(i).Type
		w := c.Frame.Word(i)
		switch goType(t).Kind() {
		case reflect.Float32:
			args[i] = reflect.ValueOf(float32(BitsFloat(KindFloat, w)))
		case reflect.Float64:
			args[i] = reflect.ValueOf(BitsFloat(KindDouble, w))
		default:
			args[i] = reflect.ValueOf(uintptr(w))
		}
	}

	c.Frame.Pin()
	res := fn.Call(args)
	c.Frame.Unpin()

	var out Outcome
	switch r := res[0]; r.Kind() {
	case reflect.Float32, reflect.Float64:
		out.Float = r.Float()
	default:
		out.Int = r.Uint()
	}
	return out, nil
}
