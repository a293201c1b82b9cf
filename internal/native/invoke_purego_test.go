//go:build (linux || darwin || freebsd) && (amd64 || arm64)

package native

import (
	"strings"
	"testing"
)

func frameOf(t *testing.T, ints, doubles int) *Frame {
	t.Helper()
	var args []Arg
	for i := 0; i < ints; i++ {
		args = append(args, mustArg(t, Type{Kind: KindInt64}, Integer(i)))
	}
	for i := 0; i < doubles; i++ {
		args = append(args, mustArg(t, Type{Kind: KindDouble}, Real(i)))
	}
	return NewFrame(args)
}

func TestCheckFrame(t *testing.T) {
	tests := []struct {
		name    string
		ints    int
		doubles int
		ok      bool
	}{
		{"empty", 0, 0, true},
		{"integers at the limit", 15, 0, true},
		{"one integer too many", 16, 0, false},
		{"floats use their own registers", 15, 8, true},
		{"float overflow shares the stack", 15, 9, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkFrame(frameOf(t, tt.ints, tt.doubles))
			if (err == nil) != tt.ok {
				t.Errorf("got %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestInvokeRejectsOversizedFrame(t *testing.T) {
	inv := newPlatformInvoker()
	_, err := inv.Invoke(&Call{Fn: 1, Frame: frameOf(t, 16, 0), Ret: Type{Kind: KindInt}})
	if err == nil || !strings.Contains(err.Error(), "too many native arguments") {
		t.Errorf("expected the frame to be rejected before the call, got %v", err)
	}
}
