package regex

import (
	"strings"
	"testing"

	"hotscript/internal/errors"
	"hotscript/internal/vm"
)

// calloutExec matches one character at start after passing a callout
// numbered 7 placed at the end of the pattern
func calloutExec(src string) func([]rune, int, ExecFlags, CalloutFunc) ([]int, string, error) {
	return func(subject []rune, start int, _ ExecFlags, callout CalloutFunc) ([]int, string, error) {
		if start >= len(subject) {
			return nil, "", nil
		}
		rc := callout(&CalloutBlock{
			Number:          7,
			Ovector:         []int{-1, -1},
			CaptureTop:      1,
			StartMatch:      start,
			CurrentPosition: start + 1,
			PatternPosition: len(src),
			Mark:            "here",
		})
		switch {
		case rc < 0:
			return nil, "", &CalloutAbort{Code: rc}
		case rc > 0:
			return nil, "", nil
		}
		return []int{start, start + 1}, "", nil
	}
}

type calloutRecord struct {
	calls  int
	number vm.Value
	pos    vm.Value
	mark   vm.Value
}

func recordingFunc(name string, rec *calloutRecord, ret vm.Value, err error) *vm.Func {
	return &vm.Func{
		Name:   name,
		Params: []vm.Param{{Name: "m"}, {Name: "n"}, {Name: "pos"}},
		Body: func(_ *vm.Thread, a *vm.Activation) (vm.Value, error) {
			rec.calls++
			rec.number = a.Arg(1)
			rec.pos = a.Arg(2)
			if obj, ok := a.Arg(0).(*vm.Object); ok {
				rec.mark, _ = obj.Get("Mark")
			}
			return ret, err
		},
	}
}

func calloutMatcher(src string, in *vm.Interp, origin Origin) *Matcher {
	eng := &fakeEngine{exec: calloutExec(src)}
	return &Matcher{Cache: NewCache(eng, 4), Interp: in, Origin: origin}
}

func TestCalloutNamedFunction(t *testing.T) {
	const needle = "x(?C7:Check)"
	in := vm.NewInterp()
	rec := &calloutRecord{}
	in.DefineFunc(recordingFunc("Check", rec, int64(0), nil))

	pos, match, err := calloutMatcher(needle, in, OriginMain).Match("abc", needle, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos != 2 || match.Value(0) != "b" {
		t.Errorf("expected b at 2, got %d", pos)
	}
	if rec.calls != 1 {
		t.Fatalf("expected 1 callout, got %d", rec.calls)
	}
	if rec.number != int64(7) || rec.pos != int64(2) {
		t.Errorf("expected callout 7 at 2, got %v at %v", rec.number, rec.pos)
	}
	if rec.mark != "here" {
		t.Errorf("expected mark on the partial match, got %v", rec.mark)
	}
}

func TestCalloutGlobalFallback(t *testing.T) {
	const needle = "x(?C7)"
	in := vm.NewInterp()
	rec := &calloutRecord{}
	in.DefineFunc(recordingFunc("OnCallout", rec, int64(1), nil))
	in.Global(CalloutVar).Set("OnCallout")

	pos, _, err := calloutMatcher(needle, in, OriginMain).Match("abc", needle, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.calls != 1 {
		t.Errorf("expected the global callout function to run, got %d calls", rec.calls)
	}
	if pos != 0 {
		t.Errorf("expected a positive return to fail the match, got %d", pos)
	}
}

func TestCalloutMissingFunction(t *testing.T) {
	tests := []struct {
		name   string
		needle string
		what   string
	}{
		{"named", "x(?C1:Nowhere)", "Nowhere"},
		{"global", "x(?C1)", CalloutVar},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := calloutMatcher(tt.needle, vm.NewInterp(), OriginMain).Match("abc", tt.needle, 1)
			if !errors.IsType(err, errors.TargetError) {
				t.Fatalf("expected a TargetError, got %v", err)
			}
			if se, _ := errors.AsScript(err); se.What != tt.what {
				t.Errorf("expected what %q, got %q", tt.what, se.What)
			}
		})
	}
}

func TestCalloutErrorPropagates(t *testing.T) {
	const needle = "x(?C7:Fail)"
	in := vm.NewInterp()
	rec := &calloutRecord{}
	boom := errors.New(errors.ValueError, "boom")
	in.DefineFunc(recordingFunc("Fail", rec, nil, boom))

	m := calloutMatcher(needle, in, OriginMain)
	_, _, err := m.Match("abc", needle, 1)
	if !errors.IsType(err, errors.ValueError) || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected the callout's error, got %v", err)
	}

	_, _, err = m.Replace("abc", needle, "-", -1, 1)
	if !errors.IsType(err, errors.ValueError) {
		t.Fatalf("expected the callout's error from Replace, got %v", err)
	}
	if rec.calls != 2 {
		t.Errorf("expected the replace to stop at the first callout, got %d calls", rec.calls)
	}
}

func TestCalloutSkippedOffMainThread(t *testing.T) {
	const needle = "x(?C7:Check)"
	in := vm.NewInterp()
	rec := &calloutRecord{}
	in.DefineFunc(recordingFunc("Check", rec, int64(-1), nil))

	pos, _, err := calloutMatcher(needle, in, OriginHook).Match("abc", needle, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos != 1 {
		t.Errorf("expected the match to continue, got %d", pos)
	}
	if rec.calls != 0 {
		t.Errorf("expected no script code on the hook thread, got %d calls", rec.calls)
	}
}

func TestCalloutAbortWithoutScriptError(t *testing.T) {
	const needle = "x(?C7:Stop)"
	in := vm.NewInterp()
	in.DefineFunc(recordingFunc("Stop", &calloutRecord{}, int64(-3), nil))

	_, _, err := calloutMatcher(needle, in, OriginMain).Match("abc", needle, 1)
	if !errors.IsType(err, errors.RegexError) {
		t.Fatalf("expected a RegexError for an aborted match, got %v", err)
	}
}

func TestCalloutArgumentsTruncated(t *testing.T) {
	const needle = "x(?C2:One)"
	in := vm.NewInterp()
	got := -1
	in.DefineFunc(&vm.Func{
		Name:   "One",
		Params: []vm.Param{{Name: "m"}},
		Body: func(_ *vm.Thread, a *vm.Activation) (vm.Value, error) {
			got = len(a.Locals) + len(a.Rest)
			return nil, nil
		},
	})
	if _, _, err := calloutMatcher(needle, in, OriginMain).Match("abc", needle, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1 {
		t.Errorf("expected 1 argument, got %d", got)
	}
}
