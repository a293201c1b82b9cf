package vm

import (
	"io"
	"reflect"
	"testing"

	"hotscript/internal/errors"
)

func newTestInterp(opts ...Option) *Interp {
	return NewInterp(append([]Option{WithLogOutput(io.Discard)}, opts...)...)
}

func TestGlobalsAreCaseInsensitive(t *testing.T) {
	in := newTestInterp()
	v := in.Global("Count")
	v.Set(int64(3))
	if got := in.Global("COUNT"); got != v {
		t.Errorf("expected the same variable")
	}
	if _, ok := in.LookupGlobal("missing"); ok {
		t.Errorf("LookupGlobal must not create variables")
	}
}

func TestResolveFunc(t *testing.T) {
	in := newTestInterp()
	f := &Func{Name: "Proc"}
	in.DefineFunc(f)
	in.RegisterBuiltin("Native", &NativeFunction{})
	obj := NewObject()
	obj.Set("Func", "proc")

	tests := []struct {
		name string
		ref  Value
		ok   bool
	}{
		{"func", f, true},
		{"name", "proc", true},
		{"padded name", " Proc ", true},
		{"variable", NewVar("fn", "Proc"), true},
		{"object", obj, true},
		{"builtin", "Native", false},
		{"missing", "Other", false},
		{"number", int64(1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := in.ResolveFunc(tt.ref)
			if ok != tt.ok || (ok && got != f) {
				t.Errorf("got %v, %v", got, ok)
			}
		})
	}
}

func TestCallBinding(t *testing.T) {
	in := newTestInterp()
	var last *Activation
	f := &Func{
		Name: "F",
		Params: []Param{
			{Name: "a"},
			{Name: "out", ByRef: true},
			{Name: "c", HasDefault: true, Default: "dflt"},
		},
		Variadic: true,
		Body: func(_ *Thread, a *Activation) (Value, error) {
			last = a
			a.Local("out").Set("written")
			return a.Arg(0), nil
		},
	}

	out := NewVar("result", nil)
	ret, err := in.Call(f, []Value{NewVar("x", int64(1)), out})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ret != int64(1) {
		t.Errorf("return: got %v", ret)
	}
	if out.Value != "written" {
		t.Errorf("ByRef parameter not aliased: %v", out.Value)
	}
	if last.Arg(2) != "dflt" {
		t.Errorf("default not applied: %v", last.Arg(2))
	}

	if _, err := in.Call(f, []Value{int64(1), "literal", "c", int64(4), int64(5)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(last.Rest) != 2 || last.Rest[1] != int64(5) {
		t.Errorf("rest: got %v", last.Rest)
	}

	if _, err := in.Call(f, []Value{int64(1)}); !errors.IsType(err, errors.TypeError) {
		t.Errorf("expected TypeError for too few parameters, got %v", err)
	}
	fixed := &Func{Name: "G", Params: []Param{{Name: "a"}}}
	if _, err := in.Call(fixed, []Value{int64(1), int64(2)}); !errors.IsType(err, errors.TypeError) {
		t.Errorf("expected TypeError for too many parameters, got %v", err)
	}
}

func TestActivationsDoNotAlias(t *testing.T) {
	in := newTestInterp()
	var depths []int
	var f *Func
	f = &Func{
		Name:   "Rec",
		Params: []Param{{Name: "n"}},
		Body: func(_ *Thread, a *Activation) (Value, error) {
			depths = append(depths, a.Depth)
			n := ToInt64(a.Arg(0))
			if n > 0 {
				if _, err := in.Call(f, []Value{n - 1}); err != nil {
					return nil, err
				}
			}
			// the inner calls must not have changed this activation's local
			return a.Arg(0), nil
		},
	}
	ret, err := in.Call(f, []Value{int64(3)})
	if err != nil {
		t.Fatal(err)
	}
	if ret != int64(3) {
		t.Errorf("got %v, want 3", ret)
	}
	if want := []int{1, 2, 3, 4}; !reflect.DeepEqual(depths, want) {
		t.Errorf("depths: got %v, want %v", depths, want)
	}
	if in.LiveActivations(f) != 0 {
		t.Errorf("live activations leaked: %d", in.LiveActivations(f))
	}
}

func TestRunAddsStackFrame(t *testing.T) {
	in := newTestInterp()
	f := &Func{Name: "Fails", Body: func(*Thread, *Activation) (Value, error) {
		return nil, errors.New(errors.ValueError, "bad")
	}}
	_, err := in.Call(f, nil)
	se, ok := errors.AsScript(err)
	if !ok {
		t.Fatalf("expected a ScriptError, got %v", err)
	}
	if len(se.CallStack) != 1 || se.CallStack[0].Function != "Fails" {
		t.Errorf("unexpected call stack %+v", se.CallStack)
	}
}

func TestApplyDefaults(t *testing.T) {
	f := &Func{Name: "F", Params: []Param{{Name: "a"}, {Name: "b", HasDefault: true, Default: int64(2)}}}
	a := NewActivation(f)
	if err := a.ApplyDefaults(1); err != nil || a.Arg(1) != int64(2) {
		t.Errorf("got %v, %v", a.Arg(1), err)
	}
	if err := NewActivation(f).ApplyDefaults(0); !errors.IsType(err, errors.TypeError) {
		t.Errorf("expected TypeError for a missing mandatory parameter, got %v", err)
	}
}

func TestCallBuiltin(t *testing.T) {
	in := newTestInterp()
	in.RegisterBuiltin("Two", &NativeFunction{MinArgs: 1, MaxArgs: 2, Function: func(_ *Interp, args []Value) (Value, error) {
		return int64(len(args)), nil
	}})
	tests := []struct {
		name string
		args []Value
		want Value
		err  errors.ErrorType
	}{
		{"one", []Value{int64(1)}, int64(1), ""},
		{"two", []Value{int64(1), int64(2)}, int64(2), ""},
		{"none", nil, nil, errors.TypeError},
		{"three", []Value{int64(1), int64(2), int64(3)}, nil, errors.TypeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := in.CallBuiltin("two", tt.args...)
			if tt.err != "" {
				if !errors.IsType(err, tt.err) {
					t.Errorf("expected %s, got %v", tt.err, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("got %v, %v", got, err)
			}
		})
	}
	if _, err := in.CallBuiltin("missing"); !errors.IsType(err, errors.TargetError) {
		t.Errorf("expected TargetError, got %v", err)
	}
}

func TestThreads(t *testing.T) {
	in := newTestInterp(WithMaxThreads(2))
	in.SwapEventInfo(1)

	t1, ok := in.BeginThread(10)
	if !ok || in.EventInfo() != 10 || in.CurrentThread() != t1 {
		t.Fatalf("first thread not started")
	}
	t2, ok := in.BeginThread(20)
	if !ok || in.ThreadCount() != 2 {
		t.Fatalf("second thread not started")
	}
	if _, ok := in.BeginThread(30); ok {
		t.Errorf("thread limit not enforced")
	}

	in.PauseCurrent()
	in.PauseCurrent()
	if in.PausedCount() != 1 {
		t.Errorf("paused count: got %d, want 1", in.PausedCount())
	}
	restore := in.UnpauseForCallback()
	if in.PausedCount() != 0 || t2.Paused {
		t.Errorf("not unpaused")
	}
	restore()
	if in.PausedCount() != 1 || !t2.Paused {
		t.Errorf("pause not restored")
	}

	in.EndThread(t1) // out of order, ignored
	if in.ThreadCount() != 2 {
		t.Errorf("out-of-order end must be ignored")
	}
	in.EndThread(t2)
	if in.PausedCount() != 0 || in.EventInfo() != 10 {
		t.Errorf("after t2: paused %d, event info %d", in.PausedCount(), in.EventInfo())
	}
	in.EndThread(t1)
	if in.ThreadCount() != 0 || in.EventInfo() != 1 || in.CurrentThread() != nil {
		t.Errorf("after t1: threads %d, event info %d", in.ThreadCount(), in.EventInfo())
	}
	if restore := in.UnpauseForCallback(); restore == nil {
		t.Errorf("restore must never be nil")
	}
}

func TestNativeErrorParking(t *testing.T) {
	in := newTestInterp()
	first := errors.New(errors.ValueError, "first")
	second := errors.New(errors.ValueError, "second")

	in.EnterNative()
	if !in.InNative() {
		t.Fatalf("expected to be in a native call")
	}
	in.ParkError(first)
	in.ParkError(second)
	if err := in.LeaveNative(); err != first {
		t.Errorf("expected the first parked error, got %v", err)
	}
	if in.InNative() {
		t.Errorf("still in a native call")
	}
	if err := in.LeaveNative(); err != nil {
		t.Errorf("parked error must be cleared, got %v", err)
	}

	var reported error
	in.OnThreadError = func(err error) { reported = err }
	in.ReportThreadError(second)
	if reported != second {
		t.Errorf("handler not called")
	}

	in.SetLastError(87)
	if in.LastError() != 87 {
		t.Errorf("last error: got %d", in.LastError())
	}
}
