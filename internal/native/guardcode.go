package native

import (
	"hotscript/internal/native/asm"
)

// A guarded call runs through a generated thunk that records where it was
// entered from in a cell of a shared data page. If the callee raises a
// hardware exception the process-wide handler finds the active cell, stores
// the exception code and resumes execution at the thunk's recovery label,
// which unwinds back to the caller as if the callee had returned 0.
//
// Data page header, one native word each:
const (
	guardActive    = 0 // cell of the innermost call in progress, or 0
	guardNext      = 1 // cell the next thunk entry will use
	guardRecover   = 2 // address of the recovery label
	guardImageLo   = 3 // executable image range; faults inside it are not ours
	guardImageHi   = 4
	guardPrevChain = 5 // previous unhandled-exception filter (32-bit)

	guardHeaderBytes = 64
	maxGuardNesting  = 16
)

// Cell layout for x86-64
const (
	cell64Prev   = 0
	cell64Ret    = 8
	cell64SP     = 16
	cell64TID    = 24
	cell64Target = 32
	cell64FRet   = 40
	cell64Code   = 48
	cell64RBX    = 56
	cell64RBP    = 64
	cell64RSI    = 72
	cell64RDI    = 80
	cell64R12    = 88
	cell64R13    = 96
	cell64R14    = 104
	cell64R15    = 112
	cell64Stride = 128
)

// Cell layout for 32-bit x86
const (
	cell32Prev     = 0
	cell32Ret      = 4
	cell32SP       = 8
	cell32TID      = 12
	cell32Target   = 16
	cell32Code     = 20
	cell32EBX      = 24
	cell32EBP      = 28
	cell32ESI      = 32
	cell32EDI      = 36
	cell32ESPAfter = 40
	cell32FPFlag   = 44
	cell32FRet     = 48
	cell32Stride   = 64
)

// TEB offsets of the current thread ID
const (
	tebThreadID64 = 0x48
	tebThreadID32 = 0x24
)

// CONTEXT offsets of the stack and instruction pointers
const (
	ctx64Rsp = 0x98
	ctx64Rip = 0xF8
	ctx32Eip = 0xB8
	ctx32Esp = 0xC4
)

// exception codes with this high nibble are errors (STATUS_SEVERITY_ERROR)
const (
	severityMask  = 0xF0000000
	severityError = 0xC0000000
)

// GuardThunk64 assembles the x86-64 call thunk for the data page at data.
// It is entered with the callee's arguments already in place and returns
// the code together with the offset of the recovery label.
func GuardThunk64(data uintptr) ([]byte, int, error) {
	a := asm.New64()
	hdr := func(slot int) int32 { return int32(slot * 8) }

	a.MovRegImm(asm.R11, uint64(data))
	a.MovRegMem(asm.R10, asm.R11, hdr(guardNext))
	a.PopReg(asm.RAX)
	a.MovMemReg(asm.R10, cell64Ret, asm.RAX)
	a.MovMemReg(asm.R10, cell64SP, asm.RSP)
	a.MovRegSeg(asm.RAX, asm.GS, tebThreadID64)
	a.MovMemReg(asm.R10, cell64TID, asm.RAX)
	saveNonvolatile64(a)
	a.MovRegMem(asm.RAX, asm.R11, hdr(guardActive))
	a.MovMemReg(asm.R10, cell64Prev, asm.RAX)
	a.MovMemReg(asm.R11, hdr(guardActive), asm.R10)
	a.MovRegReg(asm.R12, asm.R10)
	a.MovRegReg(asm.R13, asm.R11)
	a.CallMem(asm.R10, cell64Target)

	a.MovqMemXmm0(asm.R12, cell64FRet)
	a.MovRegReg(asm.R10, asm.R12)
	a.MovRegMem(asm.RCX, asm.R10, cell64Prev)
	a.MovMemReg(asm.R13, hdr(guardActive), asm.RCX)
	restoreNonvolatile64(a)
	a.PushMem(asm.R10, cell64Ret)
	a.Ret()

	a.Mark("recover")
	a.MovRegImm(asm.R11, uint64(data))
	a.MovRegMem(asm.R10, asm.R11, hdr(guardActive))
	a.MovRegMem(asm.RCX, asm.R10, cell64Prev)
	a.MovMemReg(asm.R11, hdr(guardActive), asm.RCX)
	restoreNonvolatile64(a)
	a.MovRegMem(asm.RSP, asm.R10, cell64SP)
	a.XorReg32(asm.RAX)
	a.PushMem(asm.R10, cell64Ret)
	a.Ret()

	code, err := a.Bytes()
	return code, a.Offset("recover"), err
}

var nonvolatile64 = []struct {
	reg asm.Reg
	off int32
}{
	{asm.RBX, cell64RBX}, {asm.RBP, cell64RBP}, {asm.RSI, cell64RSI}, {asm.RDI, cell64RDI},
	{asm.R12, cell64R12}, {asm.R13, cell64R13}, {asm.R14, cell64R14}, {asm.R15, cell64R15},
}

func saveNonvolatile64(a *asm.Assembler) {
	for _, r := range nonvolatile64 {
		a.MovMemReg(asm.R10, r.off, r.reg)
	}
}

func restoreNonvolatile64(a *asm.Assembler) {
	for _, r := range nonvolatile64 {
		a.MovRegMem(r.reg, asm.R10, r.off)
	}
}

// GuardHandler64 assembles the vectored continue handler for x86-64:
// LONG handler(EXCEPTION_POINTERS *p). Only error-severity exceptions raised
// outside the executable image on the thread owning the active cell are
// taken; everything else continues the search.
func GuardHandler64(data uintptr) ([]byte, error) {
	a := asm.New64()
	hdr := func(slot int) int32 { return int32(slot * 8) }
	pass := a.NewLabel()
	take := a.NewLabel()

	a.MovRegImm(asm.R11, uint64(data))
	a.MovRegMem(asm.R10, asm.R11, hdr(guardActive))
	a.TestRegReg(asm.R10)
	a.Jcc(asm.CondE, pass)
	a.MovRegSeg(asm.RAX, asm.GS, tebThreadID64)
	a.CmpRegMem(asm.RAX, asm.R10, cell64TID)
	a.Jcc(asm.CondNE, pass)

	a.MovRegMem(asm.RAX, asm.RCX, 0)
	a.MovReg32Mem(asm.RAX, asm.RAX, 0)
	a.MovRegReg(asm.RDX, asm.RAX)
	a.AndReg32Imm(asm.RDX, severityMask)
	a.CmpReg32Imm(asm.RDX, severityError)
	a.Jcc(asm.CondNE, pass)

	a.MovRegMem(asm.RDX, asm.RCX, 8)
	a.MovRegMem(asm.RDX, asm.RDX, ctx64Rip)
	a.CmpRegMem(asm.RDX, asm.R11, hdr(guardImageLo))
	a.Jcc(asm.CondB, take)
	a.CmpRegMem(asm.RDX, asm.R11, hdr(guardImageHi))
	a.Jcc(asm.CondB, pass)

	a.Bind(take)
	a.MovMemReg(asm.R10, cell64Code, asm.RAX)
	a.MovRegMem(asm.RAX, asm.RCX, 8)
	a.MovRegMem(asm.RDX, asm.R10, cell64SP)
	a.MovMemReg(asm.RAX, ctx64Rsp, asm.RDX)
	a.MovRegMem(asm.RDX, asm.R11, hdr(guardRecover))
	a.MovMemReg(asm.RAX, ctx64Rip, asm.RDX)
	a.MovReg32Imm(asm.RAX, 0xFFFFFFFF) // EXCEPTION_CONTINUE_EXECUTION
	a.Ret()

	a.Bind(pass)
	a.XorReg32(asm.RAX) // EXCEPTION_CONTINUE_SEARCH
	a.Ret()
	return a.Bytes()
}

// GuardThunk32 assembles the 32-bit x86 call thunk. Besides the cell it
// records the stack pointer after the callee returns so the number of
// argument bytes a stdcall callee removed can be checked, and it pops the
// x87 return value when the cell's float flag is set.
func GuardThunk32(data uintptr) ([]byte, int, error) {
	a := asm.New32()
	abs := func(slot int) int32 { return int32(uint32(data) + uint32(slot*4)) }
	noFloat := a.NewLabel()

	a.MovRegMem(asm.EDX, asm.Abs, abs(guardNext))
	a.PopReg(asm.EAX)
	a.MovMemReg(asm.EDX, cell32Ret, asm.EAX)
	a.MovMemReg(asm.EDX, cell32SP, asm.ESP)
	a.MovRegSeg(asm.EAX, asm.FS, tebThreadID32)
	a.MovMemReg(asm.EDX, cell32TID, asm.EAX)
	a.MovMemReg(asm.EDX, cell32EBX, asm.EBX)
	a.MovMemReg(asm.EDX, cell32EBP, asm.EBP)
	a.MovMemReg(asm.EDX, cell32ESI, asm.ESI)
	a.MovMemReg(asm.EDX, cell32EDI, asm.EDI)
	a.MovRegMem(asm.EAX, asm.Abs, abs(guardActive))
	a.MovMemReg(asm.EDX, cell32Prev, asm.EAX)
	a.MovMemReg(asm.Abs, abs(guardActive), asm.EDX)
	a.MovRegReg(asm.EBX, asm.EDX)
	a.CallMem(asm.EBX, cell32Target)

	a.MovMemReg(asm.EBX, cell32ESPAfter, asm.ESP)
	a.CmpByteMemImm(asm.EBX, cell32FPFlag, 0)
	a.Jcc(asm.CondE, noFloat)
	a.FstpMem64(asm.EBX, cell32FRet)
	a.Bind(noFloat)
	a.MovRegReg(asm.ECX, asm.EBX)
	a.MovRegMem(asm.EBX, asm.ECX, cell32Prev)
	a.MovMemReg(asm.Abs, abs(guardActive), asm.EBX)
	restoreNonvolatile32(a)
	a.MovRegMem(asm.ESP, asm.ECX, cell32SP)
	a.PushMem(asm.ECX, cell32Ret)
	a.Ret()

	a.Mark("recover")
	a.MovRegMem(asm.ECX, asm.Abs, abs(guardActive))
	a.MovRegMem(asm.EAX, asm.ECX, cell32Prev)
	a.MovMemReg(asm.Abs, abs(guardActive), asm.EAX)
	restoreNonvolatile32(a)
	a.MovRegMem(asm.ESP, asm.ECX, cell32SP)
	a.MovMemReg(asm.ECX, cell32ESPAfter, asm.ESP)
	a.XorReg32(asm.EAX)
	a.XorReg32(asm.EDX)
	a.PushMem(asm.ECX, cell32Ret)
	a.Ret()

	code, err := a.Bytes()
	return code, a.Offset("recover"), err
}

func restoreNonvolatile32(a *asm.Assembler) {
	a.MovRegMem(asm.EBX, asm.ECX, cell32EBX)
	a.MovRegMem(asm.EBP, asm.ECX, cell32EBP)
	a.MovRegMem(asm.ESI, asm.ECX, cell32ESI)
	a.MovRegMem(asm.EDI, asm.ECX, cell32EDI)
}

// GuardHandler32 assembles the 32-bit unhandled-exception filter:
// LONG __stdcall filter(EXCEPTION_POINTERS *p). Exceptions that are not ours
// are handed to the previously installed filter.
func GuardHandler32(data uintptr) ([]byte, error) {
	a := asm.New32()
	abs := func(slot int) int32 { return int32(uint32(data) + uint32(slot*4)) }
	pass := a.NewLabel()
	none := a.NewLabel()

	a.MovRegMem(asm.ECX, asm.ESP, 4)
	a.MovRegMem(asm.EDX, asm.Abs, abs(guardActive))
	a.TestRegReg(asm.EDX)
	a.Jcc(asm.CondE, pass)
	a.MovRegSeg(asm.EAX, asm.FS, tebThreadID32)
	a.CmpRegMem(asm.EAX, asm.EDX, cell32TID)
	a.Jcc(asm.CondNE, pass)
	a.MovRegMem(asm.EAX, asm.ECX, 0)
	a.MovRegMem(asm.EAX, asm.EAX, 0)
	a.AndReg32Imm(asm.EAX, severityMask)
	a.CmpReg32Imm(asm.EAX, severityError)
	a.Jcc(asm.CondNE, pass)

	a.MovRegMem(asm.EAX, asm.ECX, 0)
	a.MovRegMem(asm.EAX, asm.EAX, 0)
	a.MovMemReg(asm.EDX, cell32Code, asm.EAX)
	a.MovRegMem(asm.EAX, asm.ECX, 4)
	a.MovRegMem(asm.ECX, asm.EDX, cell32SP)
	a.MovMemReg(asm.EAX, ctx32Esp, asm.ECX)
	a.MovRegMem(asm.ECX, asm.Abs, abs(guardRecover))
	a.MovMemReg(asm.EAX, ctx32Eip, asm.ECX)
	a.MovReg32Imm(asm.EAX, 0xFFFFFFFF)
	a.RetImm(4)

	a.Bind(pass)
	a.MovRegMem(asm.EAX, asm.Abs, abs(guardPrevChain))
	a.TestRegReg(asm.EAX)
	a.Jcc(asm.CondE, none)
	a.JmpReg(asm.EAX)
	a.Bind(none)
	a.XorReg32(asm.EAX)
	a.RetImm(4)
	return a.Bytes()
}
