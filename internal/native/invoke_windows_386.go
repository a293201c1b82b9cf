package native

import (
	"encoding/binary"
	"math"
)

const cellStride = cell32Stride

var (
	assembleThunk   = GuardThunk32
	assembleHandler = GuardHandler32
)

// installHandler chains the filter in front of the one the runtime installed
func installHandler(g *guard, handler uintptr) error {
	proc := modkernel32.NewProc("SetUnhandledExceptionFilter")
	if err := proc.Find(); err != nil {
		return err
	}
	prev, _, _ := proc.Call(handler)
	g.setWord(guardPrevChain, prev)
	return nil
}

func frameWords(f *Frame) ([]uintptr, int) {
	l := f.Layout32()
	return l.MemoryOrder(), l.StackBytes
}

func prepareCell(cell []byte, c *Call) {
	binary.LittleEndian.PutUint32(cell[cell32Target:], uint32(c.Fn))
	binary.LittleEndian.PutUint32(cell[cell32Code:], 0)
	binary.LittleEndian.PutUint64(cell[cell32FRet:], 0)
	var fp uint32
	if c.Ret.Kind.IsFloat() && !c.Ret.ByRef {
		fp = 1
	}
	binary.LittleEndian.PutUint32(cell[cell32FPFlag:], fp)
}

func finishOutcome(out *Outcome, cell []byte, c *Call, r1, r2 uintptr, stackBytes int) {
	out.Int = uint64(r2)<<32 | uint64(uint32(r1))
	out.Exception = binary.LittleEndian.Uint32(cell[cell32Code:])
	if c.Ret.Kind.IsFloat() && !c.Ret.ByRef {
		// st(0) is stored as a double regardless of the declared width
		f := math.Float64frombits(binary.LittleEndian.Uint64(cell[cell32FRet:]))
		if c.Ret.Kind == KindFloat {
			f = float64(float32(f))
		}
		out.Float = f
	}
	if out.Exception == 0 && !c.CDecl {
		sp := binary.LittleEndian.Uint32(cell[cell32SP:])
		after := binary.LittleEndian.Uint32(cell[cell32ESPAfter:])
		out.StackChecked = true
		out.StackDelta = int(int32(after-sp)) - stackBytes
	}
}
