package native

import (
	"encoding/binary"
	"fmt"
)

const cellStride = cell64Stride

var (
	assembleThunk   = GuardThunk64
	assembleHandler = GuardHandler64
)

func installHandler(g *guard, handler uintptr) error {
	proc := modkernel32.NewProc("AddVectoredContinueHandler")
	if err := proc.Find(); err != nil {
		return err
	}
	h, _, err := proc.Call(1, handler)
	if h == 0 {
		return fmt.Errorf("AddVectoredContinueHandler: %w", err)
	}
	return nil
}

func frameWords(f *Frame) ([]uintptr, int) {
	return f.LayoutWin64().Slots(), 0
}

func prepareCell(cell []byte, c *Call) {
	binary.LittleEndian.PutUint64(cell[cell64Target:], uint64(c.Fn))
	binary.LittleEndian.PutUint64(cell[cell64Code:], 0)
	binary.LittleEndian.PutUint64(cell[cell64FRet:], 0)
}

func finishOutcome(out *Outcome, cell []byte, c *Call, r1, _ uintptr, _ int) {
	out.Int = uint64(r1)
	out.Exception = uint32(binary.LittleEndian.Uint64(cell[cell64Code:]))
	if c.Ret.Kind.IsFloat() && !c.Ret.ByRef {
		out.Float = BitsFloat(c.Ret.Kind, binary.LittleEndian.Uint64(cell[cell64FRet:]))
	}
}
