package stdlib

import (
	"fmt"
	"io"
	"testing"
	"unsafe"

	"hotscript/internal/callback"
	"hotscript/internal/dll"
	"hotscript/internal/errors"
	"hotscript/internal/native"
	"hotscript/internal/regex"
	"hotscript/internal/vm"
)

type fakeLoader struct{}

func (fakeLoader) GetModuleHandle(name string) (uintptr, bool) { return 1, name == "sys" }
func (fakeLoader) LoadLibrary(name string) (uintptr, error) {
	return 0, fmt.Errorf("%s not found", name)
}
func (fakeLoader) GetProcAddress(module uintptr, name string) (uintptr, bool) {
	return 0x100, module == 1 && name == "Add"
}
func (fakeLoader) SystemModules() []string { return []string{"sys"} }

// addInvoker adds the first two words
type addInvoker struct{ calls int }

func (a *addInvoker) Invoke(c *native.Call) (native.Outcome, error) {
	a.calls++
	return native.Outcome{Int: c.Frame.Word(0) + c.Frame.Word(1), LastError: 5}, nil
}

func newTestInterp(t *testing.T) (*vm.Interp, *Runtime) {
	t.Helper()
	in := vm.NewInterp(vm.WithLogOutput(io.Discard))
	codec, err := dll.NewCodec("utf-8")
	if err != nil {
		t.Fatal(err)
	}
	caller := &dll.Caller{Resolver: dll.NewResolver(fakeLoader{}), Invoker: &addInvoker{}, Codec: codec}
	factory := &callback.Factory{
		Interp: in,
		ABI:    callback.ABIWin64,
		Alloc:  func([]byte) (uintptr, error) { return 0x10000, nil },
		Stub:   func() (uintptr, error) { return 0x20000, nil },
	}
	matcher := &regex.Matcher{Cache: regex.NewCache(regex.NewRegexp2Engine(), 16), Interp: in, Origin: regex.OriginMain}
	rt := &Runtime{DLL: caller, Callbacks: factory, Regex: matcher}
	RegisterNativeFunctions(in, rt)
	return in, rt
}

func TestRegisteredNames(t *testing.T) {
	in, _ := newTestInterp(t)
	for _, name := range []string{"DllCall", "RegisterCallback", "RegExMatch", "RegExReplace", "NumGet", "NumPut", "StrGet"} {
		if _, ok := in.Builtin(name); !ok {
			t.Errorf("%s is not registered", name)
		}
	}
}

func TestDllCallBuiltin(t *testing.T) {
	in, _ := newTestInterp(t)
	got, err := in.CallBuiltin("DllCall", "Add", "Int", int64(2), "Int", int64(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != int64(5) {
		t.Errorf("got %v, want 5", got)
	}
	if in.LastError() != 5 {
		t.Errorf("last error not recorded: %d", in.LastError())
	}
	if _, err := in.CallBuiltin("DllCall", "nosuch\\Add"); !errors.IsType(err, errors.TargetError) {
		t.Errorf("expected TargetError, got %v", err)
	}
}

func TestRegisterCallbackBuiltin(t *testing.T) {
	in, rt := newTestInterp(t)
	in.DefineFunc(&vm.Func{Name: "Proc", Params: []vm.Param{{Name: "hwnd"}, {Name: "lParam"}}})
	got, err := in.CallBuiltin("RegisterCallback", "Proc", "Fast")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != int64(0x10000) {
		t.Errorf("got %v, want the trampoline address", got)
	}
	list := rt.Callbacks.List()
	if len(list) != 1 || !list[0].Options.Fast || list[0].ParamCount != 2 {
		t.Errorf("unexpected registry %+v", list)
	}
	if _, err := in.CallBuiltin("RegisterCallback", "DllCall"); !errors.IsType(err, errors.TargetError) {
		t.Errorf("a builtin must not be accepted, got %v", err)
	}
}

func TestRegExMatchBuiltin(t *testing.T) {
	in, _ := newTestInterp(t)
	m := vm.NewVar("m", nil)

	got, err := in.CallBuiltin("RegExMatch", "xyz123", `(?<num>\d+)`, m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != int64(4) {
		t.Errorf("position: got %v, want 4", got)
	}
	obj, ok := m.Value.(*vm.Object)
	if !ok {
		t.Fatalf("match variable holds %T", m.Value)
	}
	if v, _ := obj.Get("num"); v != "123" {
		t.Errorf("num: got %v", v)
	}

	tests := []struct {
		name     string
		haystack string
		needle   string
		start    vm.Value
		want     int64
	}{
		{"start position", "a1b2", `\d`, int64(3), 4},
		{"from the end", "a1b2", `\d`, int64(0), 4},
		{"no match", "abc", `\d`, nil, 0},
		{"options", "ABC", `i)b`, nil, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := in.CallBuiltin("RegExMatch", tt.haystack, tt.needle, nil, tt.start)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %d", got, tt.want)
			}
		})
	}

	if _, err := in.CallBuiltin("RegExMatch", "abc", `\d`, m); err != nil || m.Value != "" {
		t.Errorf("no match must empty the variable, got %v (%v)", m.Value, err)
	}
	if _, err := in.CallBuiltin("RegExMatch", "abc", "b", "literal"); !errors.IsType(err, errors.TypeError) {
		t.Errorf("expected TypeError for a non-variable, got %v", err)
	}
	if _, err := in.CallBuiltin("RegExMatch", "abc", "(b"); !errors.IsType(err, errors.RegexError) {
		t.Errorf("expected RegexError, got %v", err)
	}
}

func TestRegExReplaceBuiltin(t *testing.T) {
	in, _ := newTestInterp(t)
	tests := []struct {
		name  string
		args  []vm.Value
		want  string
		count int64
	}{
		{"all", []vm.Value{"abcb", "b", "[$0]"}, "a[b]c[b]", 2},
		{"omitted replacement", []vm.Value{"abc", "b"}, "ac", 1},
		{"limit", []vm.Value{"aaa", "a", "b", nil, int64(2)}, "bba", 2},
		{"start", []vm.Value{"aaa", "a", "b", nil, nil, int64(2)}, "abb", 2},
		{"empty matches", []vm.Value{"ABC", "Z*|A", "x"}, "xxxBxCx", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count := vm.NewVar("count", nil)
			args := append([]vm.Value{}, tt.args...)
			for len(args) < 4 {
				args = append(args, nil)
			}
			args[3] = count
			got, err := in.CallBuiltin("RegExReplace", args...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if count.Value != tt.count {
				t.Errorf("count: got %v, want %d", count.Value, tt.count)
			}
		})
	}
}

func TestRegExReplaceCountIsInput(t *testing.T) {
	in, _ := newTestInterp(t)
	s := vm.NewVar("s", "aXbX")
	got, err := in.CallBuiltin("RegExReplace", s, "X", "", s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ab" || s.Value != int64(2) {
		t.Errorf("got %q and count %v", got, s.Value)
	}
}

// Buffers handed to the builtins as integer addresses. Package-level
// storage keeps them off goroutine stacks, which move.
var (
	numBuf    = make([]byte, 16)
	narrowBuf = []byte("hi\x00")
	wideBuf   = []byte{'o', 0, 'k', 0, 0, 0}
)

func TestNumGetNumPut(t *testing.T) {
	in, _ := newTestInterp(t)
	addr := int64(uintptr(unsafe.Pointer(&numBuf[0])))

	next, err := in.CallBuiltin("NumPut", int64(-2), addr, int64(0), "Short")
	if err != nil {
		t.Fatal(err)
	}
	if next != addr+2 {
		t.Errorf("NumPut returned %v, want %d", next, addr+2)
	}
	if _, err := in.CallBuiltin("NumPut", 1.5, addr, int64(8), "Double"); err != nil {
		t.Fatal(err)
	}
	if _, err := in.CallBuiltin("NumPut", "0xFFFFFFFF", addr, int64(4), "UInt"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []vm.Value
		want vm.Value
	}{
		{"short", []vm.Value{addr, int64(0), "Short"}, int64(-2)},
		{"ushort", []vm.Value{addr, int64(0), "UShort"}, int64(65534)},
		{"type as second param", []vm.Value{addr, "UShort"}, int64(65534)},
		{"uint", []vm.Value{addr, int64(4), "UInt"}, int64(0xFFFFFFFF)},
		{"int", []vm.Value{addr, int64(4), "Int"}, int64(-1)},
		{"default type", []vm.Value{addr, int64(4)}, int64(0xFFFFFFFF)},
		{"double", []vm.Value{addr, int64(8), "Double"}, 1.5},
		{"char", []vm.Value{addr, int64(1), "Char"}, int64(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := in.CallBuiltin("NumGet", tt.args...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v (%T), want %v", got, got, tt.want)
			}
		})
	}

	if _, err := in.CallBuiltin("NumGet", addr, int64(0), "Str"); !errors.IsType(err, errors.TypeError) {
		t.Errorf("expected TypeError for a string type, got %v", err)
	}
	if _, err := in.CallBuiltin("NumGet", int64(0)); !errors.IsType(err, errors.ValueError) {
		t.Errorf("expected ValueError for a null address, got %v", err)
	}
}

func TestStrGet(t *testing.T) {
	in, _ := newTestInterp(t)
	na := int64(uintptr(unsafe.Pointer(&narrowBuf[0])))
	wa := int64(uintptr(unsafe.Pointer(&wideBuf[0])))

	tests := []struct {
		name string
		args []vm.Value
		want string
	}{
		{"narrow", []vm.Value{na, "UTF-8"}, "hi"},
		{"narrow length", []vm.Value{na, int64(1), "CP0"}, "h"},
		{"wide", []vm.Value{wa, "UTF-16"}, "ok"},
		{"wide length", []vm.Value{wa, int64(1), "UTF-16"}, "o"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := in.CallBuiltin("StrGet", tt.args...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRegExMatchCalloutsAndMarks(t *testing.T) {
	engine, err := regex.NewPCRE2Engine("")
	if err != nil {
		t.Skipf("libpcre2-8 not loadable: %v", err)
	}
	in, rt := newTestInterp(t)
	rt.Regex = &regex.Matcher{Cache: regex.NewCache(engine, 16), Interp: in, Origin: regex.OriginMain}

	calls := 0
	in.DefineFunc(&vm.Func{
		Name:   "OnCallout",
		Params: []vm.Param{{Name: "m"}},
		Body: func(*vm.Thread, *vm.Activation) (vm.Value, error) {
			calls++
			return int64(0), nil
		},
	})

	if _, err := in.CallBuiltin("RegExMatch", "abc", "a(?C)b"); !errors.IsType(err, errors.TargetError) {
		t.Errorf("expected an unresolved callout to raise TargetError, got %v", err)
	}

	in.Global(regex.CalloutVar).Set("OnCallout")
	got, err := in.CallBuiltin("RegExMatch", "abc", "a(?C)b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != int64(1) || calls != 1 {
		t.Errorf("got %v after %d callouts, want 1 after 1", got, calls)
	}

	m := vm.NewVar("m", nil)
	got, err = in.CallBuiltin("RegExMatch", "abc", "(*MARK:foo)b", m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != int64(2) {
		t.Errorf("position: got %v, want 2", got)
	}
	obj, ok := m.Value.(*vm.Object)
	if !ok {
		t.Fatalf("match variable holds %T", m.Value)
	}
	if v, _ := obj.Get("Mark"); v != "foo" {
		t.Errorf("Mark: got %v, want foo", v)
	}
}
