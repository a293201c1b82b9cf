package dll

import (
	"fmt"
	"strings"
	"time"

	"hotscript/internal/errors"
	"hotscript/internal/native"
	"hotscript/internal/trace"
	"hotscript/internal/vm"
)

// Caller implements DllCall
type Caller struct {
	Resolver *Resolver
	Invoker  native.Invoker
	Codec    *Codec
	Tracer   *trace.Recorder
}

// NewCaller returns a caller using the platform loader and invoker
func NewCaller(codec *Codec) *Caller {
	return &Caller{
		Resolver: NewResolver(native.DefaultLoader()),
		Invoker:  native.DefaultInvoker(),
		Codec:    codec,
	}
}

// signature is a parsed DllCall parameter list
type signature struct {
	args   []native.Type
	values []vm.Value
	ret    native.Type
	cdecl  bool
}

func (s *signature) String() string {
	parts := make([]string, 0, len(s.args)+1)
	for _, t := range s.args {
		parts = append(parts, t.String())
	}
	ret := s.ret.String()
	if s.cdecl {
		ret = "CDecl " + ret
	}
	return "(" + strings.Join(parts, ", ") + ") " + ret
}

// parseSignature splits the type/value pairs and the optional return type
// off args (the target excluded)
func parseSignature(args []vm.Value, what string) (*signature, error) {
	sig := &signature{ret: native.Type{Kind: native.KindInt}}
	if len(args)%2 == 1 {
		tag := strings.TrimSpace(vm.ToString(args[len(args)-1]))
		args = args[:len(args)-1]
		if len(tag) >= 5 && strings.EqualFold(tag[:5], "cdecl") {
			sig.cdecl = true
			tag = strings.TrimSpace(tag[5:])
		}
		if tag != "" {
			sig.ret = ParseArgType(tag, "")
			if !sig.ret.Valid() {
				return nil, errors.NewTypeError("Invalid return type.", what).WithExtra(tag)
			}
			if sig.ret.ByRef && sig.ret.Kind.IsString() {
				return nil, errors.NewTypeError("A string cannot be returned by address.", what).WithExtra(tag)
			}
		}
	}
	for i := 0; i < len(args); i += 2 {
		tag := vm.ToString(args[i])
		fallback := ""
		if v, ok := args[i+1].(*vm.Var); ok {
			fallback = v.Name
		}
		t := ParseArgType(tag, fallback)
		if !t.Valid() {
			return nil, errors.NewTypeError(fmt.Sprintf("Invalid type for parameter #%d.", i/2+1), what).WithExtra(tag)
		}
		sig.args = append(sig.args, t)
		sig.values = append(sig.values, args[i+1])
	}
	return sig, nil
}

// Call performs DllCall(target, [type, value]..., [returnType])
func (c *Caller) Call(in *vm.Interp, args []vm.Value) (vm.Value, error) {
	if len(args) == 0 {
		return nil, errors.NewTypeError("Too few parameters passed to function.", "DllCall")
	}
	what := vm.ToString(args[0])
	sig, err := parseSignature(args[1:], what)
	if err != nil {
		return nil, err
	}
	fn, name, err := c.Resolver.Resolve(args[0])
	if err != nil {
		return nil, err
	}

	nargs := make([]native.Arg, len(sig.args))
	for i, t := range sig.args {
		v, err := c.scalar(t, sig.values[i], name, i)
		if err != nil {
			return nil, err
		}
		if nargs[i], err = native.NewArg(t, v); err != nil {
			return nil, errors.NewTypeError(err.Error(), name)
		}
	}
	frame := native.NewFrame(nargs)
	call := &native.Call{Fn: fn, Frame: frame, CDecl: sig.cdecl, Ret: sig.ret}

	started := time.Now()
	in.EnterNative()
	out, callErr := c.Invoker.Invoke(call)
	if callErr == nil {
		in.SetLastError(out.LastError)
	}
	pending := in.LeaveNative()
	elapsed := time.Since(started)

	ev := trace.Event{
		Kind:      trace.KindDllCall,
		Target:    name,
		Detail:    sig.String(),
		LastError: out.LastError,
		Exception: out.Exception,
		Duration:  elapsed,
	}
	result, err := c.finish(sig, frame, out, callErr, name)
	if err == nil {
		err = pending
	}
	if err != nil {
		ev.Err = err.Error()
	} else {
		ev.Result = vm.ToString(result)
	}
	c.Tracer.Emit(ev)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// scalar converts script value v for a parameter of type t
func (c *Caller) scalar(t native.Type, v vm.Value, what string, i int) (native.Scalar, error) {
	switch {
	case t.Kind.IsString():
		vr, isVar := v.(*vm.Var)
		switch vm.Deref(v).(type) {
		case int64, int, float64:
			if !isVar {
				return nil, errors.NewTypeError(fmt.Sprintf("Parameter #%d: a number cannot be passed as %s.", i+1, t.Kind), what)
			}
		}
		capacity := 0
		if isVar {
			capacity = vr.Capacity
		}
		txt, err := c.Codec.Encode(t.Kind, vm.ToString(v), capacity)
		if err != nil {
			return nil, errors.NewTypeError(err.Error(), what).WithCause(err)
		}
		return txt, nil
	case t.Kind.IsFloat():
		return native.Real(vm.ToFloat(v)), nil
	case t.Unsigned:
		return native.Integer(vm.ToUint64(v)), nil
	default:
		return native.Integer(uint64(vm.ToInt64(v))), nil
	}
}

// finish turns the outcome into a script value after copying output
// arguments back
func (c *Caller) finish(sig *signature, frame *native.Frame, out native.Outcome, callErr error, name string) (vm.Value, error) {
	if callErr != nil {
		return nil, errors.New(errors.RuntimeError, callErr.Error()).WithWhat(name).WithCause(callErr)
	}
	if out.Exception != 0 {
		return nil, errors.NewOSError(out.Exception, name)
	}
	if out.StackChecked && out.StackDelta != 0 {
		if out.StackDelta < 0 {
			return nil, errors.NewTypeError(fmt.Sprintf("The parameter list is too large by %d bytes.", -out.StackDelta), name)
		}
		return nil, errors.NewTypeError(fmt.Sprintf("The parameter list is too small by %d bytes.", out.StackDelta), name)
	}
	if err := c.writeBack(sig, frame); err != nil {
		return nil, err
	}
	return c.decodeReturn(sig.ret, out, name)
}

// writeBack copies by-address values and string buffers into the
// variables they came from
func (c *Caller) writeBack(sig *signature, frame *native.Frame) error {
	for i, t := range sig.args {
		vr, ok := sig.values[i].(*vm.Var)
		if !ok || !t.Writable() {
			continue
		}
		switch {
		case t.Kind.IsString() && t.ByRef:
			s, err := c.Codec.ReadString(t.Kind, uintptr(frame.Cell(i)))
			if err != nil {
				return errors.NewTypeError(err.Error(), vr.Name)
			}
			vr.Set(s)
		case t.Kind.IsString():
			buf := frame.Text(i)
			Terminate(t.Kind, buf)
			s, err := c.Codec.Decode(t.Kind, buf)
			if err != nil {
				return errors.NewTypeError(err.Error(), vr.Name)
			}
			vr.Set(s)
		case t.Kind.IsFloat():
			vr.Set(native.BitsFloat(t.Kind, frame.Cell(i)))
		default:
			vr.Set(intValue(t, frame.Cell(i)))
		}
	}
	return nil
}

func intValue(t native.Type, bits uint64) int64 {
	return int64(t.Extend(bits))
}

func (c *Caller) decodeReturn(ret native.Type, out native.Outcome, name string) (vm.Value, error) {
	if ret.ByRef {
		addr := uintptr(out.Int)
		if addr == 0 {
			return nil, nil
		}
		bits := native.Peek(addr, ret.Kind.Size())
		if ret.Kind.IsFloat() {
			return native.BitsFloat(ret.Kind, bits), nil
		}
		return intValue(ret, bits), nil
	}
	switch {
	case ret.Kind.IsFloat():
		return out.Float, nil
	case ret.Kind.IsString():
		s, err := c.Codec.ReadString(ret.Kind, uintptr(out.Int))
		if err != nil {
			return nil, errors.NewTypeError(err.Error(), name)
		}
		return s, nil
	}
	return intValue(ret, out.Int), nil
}
