package callback

import (
	"fmt"
	"runtime"
	"time"
	"unsafe"

	scripterr "hotscript/internal/errors"
	"hotscript/internal/native"
	"hotscript/internal/trace"
	"hotscript/internal/vm"
)

// Dispatch is the Go side of the re-entry stub. block is the address of
// the incoming argument words as laid out by the trampoline for id.
// The result is what the trampoline returns to its native caller; it is 0
// whenever the function could not run or returned nothing.
func (f *Factory) Dispatch(id, block uintptr) uintptr {
	cb, ok := f.Lookup(id)
	if !ok {
		f.Interp.Logger.Printf("callback %d is not registered", id)
		return 0
	}
	in := f.Interp

	if cb.Options.Fast {
		old := in.SwapEventInfo(cb.EventInfo)
		restore := in.UnpauseForCallback()
		defer func() {
			restore()
			in.SwapEventInfo(old)
		}()
	} else {
		t, ok := in.BeginThread(cb.EventInfo)
		if !ok {
			return 0
		}
		defer in.EndThread(t)
	}

	started := time.Now()
	ret, err := f.run(cb, block)
	ev := trace.Event{
		Kind:     trace.KindCallback,
		Target:   cb.Func.Name,
		Detail:   fmt.Sprintf("0x%X (%d params) %s", cb.Addr, cb.ParamCount, cb.Options),
		Duration: time.Since(started),
	}
	if err != nil {
		ev.Err = err.Error()
		f.Tracer.Emit(ev)
		if in.InNative() {
			in.ParkError(err)
		} else {
			in.ReportThreadError(err)
		}
		return 0
	}
	result := coerce(ret)
	ev.Result = fmt.Sprint(result)
	f.Tracer.Emit(ev)
	return result
}

// run binds the incoming words to a fresh activation of the function and
// executes it
func (f *Factory) run(cb *Callback, block uintptr) (ret vm.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = scripterr.New(scripterr.RuntimeError, fmt.Sprint(r)).WithWhat(cb.Func.Name)
		}
	}()

	a := vm.NewActivation(cb.Func)
	n := min(cb.ParamCount, len(cb.Func.Params))
	for i := 0; i < n; i++ {
		a.Locals[i].Value = f.word(block, i)
	}
	if err := a.ApplyDefaults(n); err != nil {
		return nil, err
	}

	var rest []uint64
	if cb.Func.Variadic && cb.ParamCount > n {
		a.RestLen = cb.ParamCount - n
		if f.ABI.Contiguous(n, cb.ParamCount) {
			a.RestAddr = f.ABI.ArgAddr(block, n)
		} else {
			rest = make([]uint64, a.RestLen)
			for i := range rest {
				rest[i] = native.Peek(f.ABI.ArgAddr(block, n+i), 8)
			}
			a.RestAddr = uintptr(unsafe.Pointer(&rest[0]))
		}
	}
	ret, err = f.Interp.Run(a)
	runtime.KeepAlive(rest)
	return ret, err
}

// word reads incoming argument i. 32-bit words are unsigned.
func (f *Factory) word(block uintptr, i int) int64 {
	w := native.Peek(f.ABI.ArgAddr(block, i), f.ABI.WordSize())
	if f.ABI.WordSize() == 4 {
		return int64(uint32(w))
	}
	return int64(w)
}

// coerce converts the function's return value to a native word
func coerce(v vm.Value) uintptr {
	if vm.IsEmpty(v) {
		return 0
	}
	return uintptr(vm.ToUint64(v))
}
