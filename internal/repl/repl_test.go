package repl

import (
	"bytes"
	"context"
	"io"
	"reflect"
	"strings"
	"testing"

	"hotscript/internal/callback"
	"hotscript/internal/regex"
	"hotscript/internal/stdlib"
	"hotscript/internal/vm"
)

func TestParseStatement(t *testing.T) {
	tests := []struct {
		line string
		want *statement
	}{
		{`42`, &statement{value: literal{int64(42)}}},
		{`-0x10`, &statement{value: literal{int64(-16)}}},
		{`"say ""hi"""`, &statement{value: literal{`say "hi"`}}},
		{`x`, &statement{value: variable{"x"}}},
		{`n := 1.5`, &statement{assign: "n", value: literal{1.5}}},
		{`F()`, &statement{value: call{name: "F"}}},
		{`F(a, &b, "c\d")`, &statement{value: call{name: "F", args: []expr{variable{"a"}, variable{"b"}, literal{`c\d`}}}}},
		{`F(1,,3)`, &statement{value: call{name: "F", args: []expr{literal{int64(1)}, literal{nil}, literal{int64(3)}}}}},
		{`r := F(G(1))`, &statement{assign: "r", value: call{name: "F", args: []expr{call{name: "G", args: []expr{literal{int64(1)}}}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseStatement(tt.line)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, line := range []string{`"open`, `F(1`, `F(1 2)`, `1 2`, `&`, `@`} {
		t.Run(line, func(t *testing.T) {
			if _, err := parseStatement(line); err == nil {
				t.Errorf("expected an error")
			}
		})
	}
}

func newTestShell() (*Shell, *bytes.Buffer) {
	in := vm.NewInterp(vm.WithLogOutput(io.Discard))
	rt := &stdlib.Runtime{
		Callbacks: &callback.Factory{
			Interp: in,
			ABI:    callback.ABIWin64,
			Alloc:  func([]byte) (uintptr, error) { return 0x4000, nil },
			Stub:   func() (uintptr, error) { return 0x5000, nil },
		},
		Regex: &regex.Matcher{Cache: regex.NewCache(regex.NewRegexp2Engine(), 8), Interp: in, Origin: regex.OriginMain},
	}
	stdlib.RegisterNativeFunctions(in, rt)
	var out bytes.Buffer
	return New(in, rt, nil, &out), &out
}

func TestShellSession(t *testing.T) {
	sh, out := newTestShell()
	script := strings.Join([]string{
		`; comment`,
		`RegExMatch("xyz123", "\d+")`,
		`s := "a-b-c"`,
		`RegExReplace(s, "-", "+", &n)`,
		`n`,
		`:def Second(a, b) => b`,
		`Second(1, "two")`,
		`RegisterCallback("Second")`,
		`:callbacks`,
		`exit`,
		`"not reached"`,
	}, "\n")
	if err := sh.Run(context.Background(), strings.NewReader(script)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "4\na+b+c\n2\ntwo\n16384\n  0x4000  Second  params=2 options=\"\" event=0x4000\n"
	if got := out.String(); got != want {
		t.Errorf("output\n got %q\nwant %q", got, want)
	}
}

func TestShellMatchObject(t *testing.T) {
	sh, out := newTestShell()
	if err := sh.Exec(`RegExMatch("ab", "(?<x>b)", m)`); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	if err := sh.Exec(`m`); err != nil {
		t.Fatal(err)
	}
	for _, line := range []string{"  x = b", "  pos = 2", "  count = 1"} {
		if !strings.Contains(out.String(), line+"\n") {
			t.Errorf("missing %q in\n%s", line, out.String())
		}
	}
}

func TestShellErrors(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{`Nope()`, "unknown function Nope"},
		{`RegExMatch("a", "(")`, "RegexError"},
		{`F(`, "syntax error"},
		{`:bogus`, "unknown command :bogus"},
		{`:def Broken`, "expected Name(params) => expr"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			sh, out := newTestShell()
			if err := sh.Exec(tt.line); err == nil {
				t.Fatalf("expected an error")
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output %q does not mention %q", out.String(), tt.want)
			}
		})
	}
}

func TestShellDefaultsAndVariadic(t *testing.T) {
	sh, out := newTestShell()
	lines := []string{
		`:def Opt(a, b := 5) => b`,
		`Opt(1)`,
		`:def Rest(a, more*) => a`,
		`Rest(7, 8, 9)`,
	}
	for _, l := range lines {
		if err := sh.Exec(l); err != nil {
			t.Fatalf("%s: %v", l, err)
		}
	}
	if got := out.String(); got != "5\n7\n" {
		t.Errorf("got %q", got)
	}
	f, ok := sh.Interp.FindFunc("Rest")
	if !ok || !f.Variadic || f.MinParams() != 1 {
		t.Errorf("unexpected definition %+v", f)
	}
}

func TestShellStats(t *testing.T) {
	sh, out := newTestShell()
	sh.Exec(`RegExMatch("a", "a")`)
	sh.Exec(`RegExMatch("a", "a")`)
	out.Reset()
	if err := sh.Exec(":stats"); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"regex cache   1/8 entries, 1 hits, 1 misses", "exec memory", "callbacks     0", "threads       0 running"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("missing %q in\n%s", want, out.String())
		}
	}
}
