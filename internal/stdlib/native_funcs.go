package stdlib

import (
	"fmt"
	"strings"

	"hotscript/internal/callback"
	"hotscript/internal/dll"
	"hotscript/internal/errors"
	"hotscript/internal/native"
	"hotscript/internal/regex"
	"hotscript/internal/trace"
	"hotscript/internal/vm"
)

// Runtime holds the native-interop subsystems the builtins share
type Runtime struct {
	DLL       *dll.Caller
	Callbacks *callback.Factory
	Regex     *regex.Matcher
}

// NewRuntime wires the platform subsystems for in. tracer may be nil.
func NewRuntime(in *vm.Interp, codec *dll.Codec, tracer *trace.Recorder) *Runtime {
	caller := dll.NewCaller(codec)
	caller.Tracer = tracer
	factory := callback.NewFactory(in)
	factory.Tracer = tracer
	return &Runtime{DLL: caller, Callbacks: factory, Regex: regex.NewMatcher(in)}
}

// RegisterNativeFunctions registers the native-interop builtins in the interpreter
func RegisterNativeFunctions(in *vm.Interp, rt *Runtime) {
	// Native calls
	in.RegisterBuiltin("DllCall", &vm.NativeFunction{MinArgs: 1, MaxArgs: -1, Function: rt.dllCall})
	in.RegisterBuiltin("RegisterCallback", &vm.NativeFunction{MinArgs: 1, MaxArgs: 4, Function: rt.registerCallback})

	// Regular expressions
	in.RegisterBuiltin("RegExMatch", &vm.NativeFunction{MinArgs: 2, MaxArgs: 4, Function: rt.regExMatch})
	in.RegisterBuiltin("RegExReplace", &vm.NativeFunction{MinArgs: 2, MaxArgs: 6, Function: rt.regExReplace})

	// Raw memory
	in.RegisterBuiltin("NumGet", &vm.NativeFunction{MinArgs: 1, MaxArgs: 3, Function: numGet})
	in.RegisterBuiltin("NumPut", &vm.NativeFunction{MinArgs: 2, MaxArgs: 4, Function: numPut})
	in.RegisterBuiltin("StrGet", &vm.NativeFunction{MinArgs: 1, MaxArgs: 3, Function: rt.strGet})
}

// arg returns args[i], or nil when it was not passed
func arg(args []vm.Value, i int) vm.Value {
	if i < len(args) {
		return args[i]
	}
	return nil
}

// intArg returns args[i] as an integer, or def when it is omitted or empty
func intArg(args []vm.Value, i int, def int64) int64 {
	v := arg(args, i)
	if vm.IsEmpty(v) {
		return def
	}
	return vm.ToInt64(v)
}

// outVar returns the output variable passed at i, nil if none was passed
func outVar(args []vm.Value, i int, fn string) (*vm.Var, error) {
	v := arg(args, i)
	if v == nil {
		return nil, nil
	}
	vr, ok := v.(*vm.Var)
	if !ok {
		return nil, errors.NewTypeError(fmt.Sprintf("Parameter #%d must be a variable.", i+1), fn)
	}
	return vr, nil
}

// DllCall(target, [type, value]..., [returnType]) - Call a native function
// Example: DllCall("user32\MessageBox", "Ptr", 0, "Str", "text", "Str", "title", "UInt", 0)
func (rt *Runtime) dllCall(in *vm.Interp, args []vm.Value) (vm.Value, error) {
	return rt.DLL.Call(in, args)
}

// RegisterCallback(function, [options], [paramCount], [eventInfo]) - Create a native function pointer
// Example: RegisterCallback("EnumWindowsProc", "Fast")
func (rt *Runtime) registerCallback(in *vm.Interp, args []vm.Value) (vm.Value, error) {
	cb, err := rt.Callbacks.Register(args[0], vm.ToString(arg(args, 1)), arg(args, 2), arg(args, 3))
	if err != nil {
		return nil, err
	}
	return int64(cb.Addr), nil
}

// RegExMatch(haystack, needle, [&match], [startPos]) - Find a pattern
// Example: RegExMatch("xyz123", "(?<num>\d+)", m)  ; returns 4, m.num = "123"
func (rt *Runtime) regExMatch(in *vm.Interp, args []vm.Value) (vm.Value, error) {
	out, err := outVar(args, 2, "RegExMatch")
	if err != nil {
		return nil, err
	}
	pos, m, err := rt.Regex.Match(vm.ToString(args[0]), vm.ToString(args[1]), int(intArg(args, 3, 1)))
	if err != nil {
		return nil, err
	}
	if out != nil {
		if m != nil {
			out.Set(m.Object())
		} else {
			out.Set("")
		}
	}
	return int64(pos), nil
}

// RegExReplace(haystack, needle, [replacement], [&count], [limit], [startPos]) - Replace matches
// Example: RegExReplace("abc", "b", "[$0]")  ; returns "a[b]c"
func (rt *Runtime) regExReplace(in *vm.Interp, args []vm.Value) (vm.Value, error) {
	count, err := outVar(args, 3, "RegExReplace")
	if err != nil {
		return nil, err
	}
	haystack := vm.ToString(args[0])
	needle := vm.ToString(args[1])
	repl := vm.ToString(arg(args, 2))
	res, n, err := rt.Regex.Replace(haystack, needle, repl, int(intArg(args, 4, -1)), int(intArg(args, 5, 1)))
	if err != nil {
		return nil, err
	}
	// the count variable may be one of the inputs, so it is written last
	if count != nil {
		count.Set(int64(n))
	}
	return res, nil
}

// numType parses a NumGet/NumPut type; strings are not allowed
func numType(v vm.Value, fn string) (native.Type, error) {
	tag := "UInt"
	if !vm.IsEmpty(v) {
		tag = strings.TrimSpace(vm.ToString(v))
	}
	t := dll.ParseArgType(tag, "")
	if !t.Valid() || t.Kind.IsString() || t.ByRef {
		return native.Type{}, errors.NewTypeError("Invalid type.", fn).WithExtra(tag)
	}
	return t, nil
}

func address(args []vm.Value, fn string) (uintptr, error) {
	addr := uintptr(vm.ToUint64(args[0]))
	if addr == 0 {
		return 0, errors.New(errors.ValueError, "Invalid address.").WithWhat(fn)
	}
	return addr, nil
}

// NumGet(address, [offset], [type]) - Read a number from memory
// Example: NumGet(ptr, 8, "Int64")
func numGet(in *vm.Interp, args []vm.Value) (vm.Value, error) {
	base, err := address(args, "NumGet")
	if err != nil {
		return nil, err
	}
	// the type may be passed in place of the offset
	offset, typ := arg(args, 1), arg(args, 2)
	if len(args) == 2 && !vm.IsEmpty(offset) && !vm.IsNumber(offset) {
		offset, typ = nil, offset
	}
	t, err := numType(typ, "NumGet")
	if err != nil {
		return nil, err
	}
	addr := base + uintptr(vm.ToInt64(offset))
	bits := native.Peek(addr, t.Kind.Size())
	if t.Kind.IsFloat() {
		return native.BitsFloat(t.Kind, bits), nil
	}
	return int64(t.Extend(bits)), nil
}

// NumPut(number, address, [offset], [type]) - Write a number to memory
// Returns the address just past the written value.
// Example: NumPut(42, ptr, 0, "Short")
func numPut(in *vm.Interp, args []vm.Value) (vm.Value, error) {
	base, err := address(args[1:], "NumPut")
	if err != nil {
		return nil, err
	}
	offset, typ := arg(args, 2), arg(args, 3)
	if len(args) == 3 && !vm.IsEmpty(offset) && !vm.IsNumber(offset) {
		offset, typ = nil, offset
	}
	t, err := numType(typ, "NumPut")
	if err != nil {
		return nil, err
	}
	addr := base + uintptr(vm.ToInt64(offset))
	size := t.Kind.Size()
	switch {
	case t.Kind.IsFloat():
		native.Poke(addr, size, native.FloatBits(t.Kind, vm.ToFloat(args[0])))
	case t.Unsigned:
		native.Poke(addr, size, vm.ToUint64(args[0]))
	default:
		native.Poke(addr, size, uint64(vm.ToInt64(args[0])))
	}
	return int64(addr) + int64(size), nil
}

// strKind maps a StrGet encoding name to a string kind
func strKind(v vm.Value) native.Kind {
	switch strings.ToLower(strings.TrimSpace(vm.ToString(v))) {
	case "":
		return native.NativeString
	case "utf-16", "utf16", "cp1200", "wstr":
		return native.KindWStr
	}
	return native.KindAStr
}

// StrGet(address, [length], [encoding]) - Read a string from memory
// Example: StrGet(buf, "UTF-16")
func (rt *Runtime) strGet(in *vm.Interp, args []vm.Value) (vm.Value, error) {
	addr, err := address(args, "StrGet")
	if err != nil {
		return nil, err
	}
	length, enc := arg(args, 1), arg(args, 2)
	if len(args) == 2 && !vm.IsEmpty(length) && !vm.IsNumber(length) {
		length, enc = nil, length
	}
	k := strKind(enc)
	codec := rt.DLL.Codec
	n := vm.ToInt64(length)
	if n <= 0 {
		s, err := codec.ReadString(k, addr)
		if err != nil {
			return nil, errors.NewTypeError(err.Error(), "StrGet")
		}
		return s, nil
	}
	unit := int64(1)
	if k == native.KindWStr {
		unit = 2
	}
	s, err := codec.Decode(k, native.Bytes(addr, int(n*unit)))
	if err != nil {
		return nil, errors.NewTypeError(err.Error(), "StrGet")
	}
	return s, nil
}
