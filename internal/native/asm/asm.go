// Package asm is a small x86 / x86-64 instruction encoder for the handful of
// instructions used by generated trampolines and call guards. It emits
// position-independent code except where an absolute address is encoded as
// an immediate or (32-bit only) as an absolute memory operand.
package asm

import (
	"encoding/binary"
	"fmt"
)

// Reg is a general-purpose register number (0-15)
type Reg uint8

const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

// 32-bit names for the same encodings
const (
	EAX = RAX
	ECX = RCX
	EDX = RDX
	EBX = RBX
	ESP = RSP
	EBP = RBP
	ESI = RSI
	EDI = RDI
)

// Abs as a base register selects an absolute disp32 memory operand. It is
// only valid in 32-bit mode (in 64-bit mode the same encoding is RIP-relative).
const Abs Reg = 0xFF

// Cond is a condition code for short jumps
type Cond byte

const (
	CondB  Cond = 0x72 // unsigned below
	CondE  Cond = 0x74
	CondNE Cond = 0x75
)

// Seg is a segment override prefix
type Seg byte

const (
	FS Seg = 0x64
	GS Seg = 0x65
)

// Label is a jump target; it may be referenced before it is bound
type Label struct {
	pos    int
	bound  bool
	fixups []int
}

// Assembler accumulates machine code
type Assembler struct {
	buf    []byte
	mode64 bool
	marks  map[string]int
	labels []*Label
}

// New64 returns an assembler emitting x86-64 code
func New64() *Assembler {
	return &Assembler{mode64: true, marks: make(map[string]int)}
}

// New32 returns an assembler emitting 32-bit x86 code
func New32() *Assembler {
	return &Assembler{marks: make(map[string]int)}
}

// Mode64 reports whether the assembler emits x86-64 code
func (a *Assembler) Mode64() bool { return a.mode64 }

// Len returns the number of bytes emitted so far
func (a *Assembler) Len() int { return len(a.buf) }

// Mark records the current offset under name
func (a *Assembler) Mark(name string) {
	a.marks[name] = len(a.buf)
}

// Offset returns the offset recorded by Mark
func (a *Assembler) Offset(name string) int {
	off, ok := a.marks[name]
	if !ok {
		panic(fmt.Sprintf("asm: no mark %q", name))
	}
	return off
}

// NewLabel creates an unbound label
func (a *Assembler) NewLabel() *Label {
	l := &Label{}
	a.labels = append(a.labels, l)
	return l
}

// Bind binds l to the current offset
func (a *Assembler) Bind(l *Label) {
	l.pos = len(a.buf)
	l.bound = true
}

// Bytes resolves labels and returns the code
func (a *Assembler) Bytes() ([]byte, error) {
	for _, l := range a.labels {
		if len(l.fixups) > 0 && !l.bound {
			return nil, fmt.Errorf("asm: unbound label referenced at %d", l.fixups[0])
		}
		for _, at := range l.fixups {
			rel := l.pos - (at + 1)
			if rel < -128 || rel > 127 {
				return nil, fmt.Errorf("asm: short jump out of range (%d)", rel)
			}
			a.buf[at] = byte(int8(rel))
		}
	}
	out := make([]byte, len(a.buf))
	copy(out, a.buf)
	return out, nil
}

func (a *Assembler) emit(b ...byte) {
	a.buf = append(a.buf, b...)
}

func (a *Assembler) emit32(v uint32) {
	a.buf = binary.LittleEndian.AppendUint32(a.buf, v)
}

func (a *Assembler) emit64(v uint64) {
	a.buf = binary.LittleEndian.AppendUint64(a.buf, v)
}

// rex emits a REX prefix when one is required. w selects 64-bit operand size.
func (a *Assembler) rex(w bool, reg, base Reg) {
	if !a.mode64 {
		return
	}
	var b byte = 0x40
	if w {
		b |= 0x08
	}
	if reg != Abs && reg&8 != 0 {
		b |= 0x04
	}
	if base != Abs && base&8 != 0 {
		b |= 0x01
	}
	if b != 0x40 {
		a.emit(b)
	}
}

func modrm(mod, reg, rm byte) byte {
	return mod<<6 | (reg&7)<<3 | rm&7
}

// mem emits the ModRM (+SIB, +displacement) bytes of a [base+disp] operand
func (a *Assembler) mem(reg byte, base Reg, disp int32) {
	if base == Abs {
		if a.mode64 {
			panic("asm: absolute memory operand in 64-bit mode")
		}
		a.emit(modrm(0, reg, 5))
		a.emit32(uint32(disp))
		return
	}
	rm := byte(base) & 7
	var mod byte
	switch {
	case disp == 0 && rm != 5:
		mod = 0
	case disp >= -128 && disp <= 127:
		mod = 1
	default:
		mod = 2
	}
	a.emit(modrm(mod, reg, rm))
	if rm == 4 {
		a.emit(0x24)
	}
	switch mod {
	case 1:
		a.emit(byte(int8(disp)))
	case 2:
		a.emit32(uint32(disp))
	}
}

// MovRegImm loads an immediate of the native word size into r
func (a *Assembler) MovRegImm(r Reg, imm uint64) {
	a.rex(true, 0, r)
	a.emit(0xB8 + byte(r)&7)
	if a.mode64 {
		a.emit64(imm)
	} else {
		a.emit32(uint32(imm))
	}
}

// MovMemReg stores the native-width register src to [base+disp]
func (a *Assembler) MovMemReg(base Reg, disp int32, src Reg) {
	a.rex(true, src, base)
	a.emit(0x89)
	a.mem(byte(src), base, disp)
}

// MovRegMem loads the native-width [base+disp] into dst
func (a *Assembler) MovRegMem(dst, base Reg, disp int32) {
	a.rex(true, dst, base)
	a.emit(0x8B)
	a.mem(byte(dst), base, disp)
}

// MovMem32Reg stores the low 32 bits of src to [base+disp]
func (a *Assembler) MovMem32Reg(base Reg, disp int32, src Reg) {
	a.rex(false, src, base)
	a.emit(0x89)
	a.mem(byte(src), base, disp)
}

// MovReg32Mem loads 32 bits from [base+disp] into dst, zero-extending
func (a *Assembler) MovReg32Mem(dst, base Reg, disp int32) {
	a.rex(false, dst, base)
	a.emit(0x8B)
	a.mem(byte(dst), base, disp)
}

// MovMemImm32 stores a 32-bit immediate (sign-extended in 64-bit mode)
func (a *Assembler) MovMemImm32(base Reg, disp int32, imm uint32) {
	a.rex(true, 0, base)
	a.emit(0xC7)
	a.mem(0, base, disp)
	a.emit32(imm)
}

// MovRegReg copies src into dst
func (a *Assembler) MovRegReg(dst, src Reg) {
	a.rex(true, src, dst)
	a.emit(0x89, modrm(3, byte(src), byte(dst)))
}

// LeaRegMem loads the address base+disp into dst
func (a *Assembler) LeaRegMem(dst, base Reg, disp int32) {
	a.rex(true, dst, base)
	a.emit(0x8D)
	a.mem(byte(dst), base, disp)
}

// PushReg pushes r
func (a *Assembler) PushReg(r Reg) {
	a.rex(false, 0, r)
	a.emit(0x50 + byte(r)&7)
}

// PopReg pops into r
func (a *Assembler) PopReg(r Reg) {
	a.rex(false, 0, r)
	a.emit(0x58 + byte(r)&7)
}

// PushImm32 pushes a 32-bit immediate (sign-extended in 64-bit mode)
func (a *Assembler) PushImm32(imm uint32) {
	a.emit(0x68)
	a.emit32(imm)
}

// PushMem pushes the native word at [base+disp]
func (a *Assembler) PushMem(base Reg, disp int32) {
	a.rex(false, 0, base)
	a.emit(0xFF)
	a.mem(6, base, disp)
}

// CallMem calls the address stored at [base+disp]
func (a *Assembler) CallMem(base Reg, disp int32) {
	a.rex(false, 0, base)
	a.emit(0xFF)
	a.mem(2, base, disp)
}

// CallReg calls the address in r
func (a *Assembler) CallReg(r Reg) {
	a.rex(false, 0, r)
	a.emit(0xFF, modrm(3, 2, byte(r)))
}

// JmpReg jumps to the address in r
func (a *Assembler) JmpReg(r Reg) {
	a.rex(false, 0, r)
	a.emit(0xFF, modrm(3, 4, byte(r)))
}

// Ret returns to the caller
func (a *Assembler) Ret() {
	a.emit(0xC3)
}

// RetImm returns and pops n bytes of arguments (stdcall epilogue)
func (a *Assembler) RetImm(n uint16) {
	a.emit(0xC2, byte(n), byte(n>>8))
}

// SubRegImm8 subtracts a small immediate from r
func (a *Assembler) SubRegImm8(r Reg, imm int8) {
	a.rex(true, 0, r)
	a.emit(0x83, modrm(3, 5, byte(r)), byte(imm))
}

// AddRegImm8 adds a small immediate to r
func (a *Assembler) AddRegImm8(r Reg, imm int8) {
	a.rex(true, 0, r)
	a.emit(0x83, modrm(3, 0, byte(r)), byte(imm))
}

// AndReg32Imm masks the low 32 bits of r
func (a *Assembler) AndReg32Imm(r Reg, imm uint32) {
	a.rex(false, 0, r)
	a.emit(0x81, modrm(3, 4, byte(r)))
	a.emit32(imm)
}

// CmpReg32Imm compares the low 32 bits of r with imm
func (a *Assembler) CmpReg32Imm(r Reg, imm uint32) {
	a.rex(false, 0, r)
	a.emit(0x81, modrm(3, 7, byte(r)))
	a.emit32(imm)
}

// XorReg32 clears r (xor r32, r32)
func (a *Assembler) XorReg32(r Reg) {
	a.rex(false, r, r)
	a.emit(0x31, modrm(3, byte(r), byte(r)))
}

// MovReg32Imm loads a 32-bit immediate, zero-extending in 64-bit mode
func (a *Assembler) MovReg32Imm(r Reg, imm uint32) {
	a.rex(false, 0, r)
	a.emit(0xB8 + byte(r)&7)
	a.emit32(imm)
}

// TestRegReg sets flags from r & r
func (a *Assembler) TestRegReg(r Reg) {
	a.rex(true, r, r)
	a.emit(0x85, modrm(3, byte(r), byte(r)))
}

// CmpRegMem compares r with the native word at [base+disp]
func (a *Assembler) CmpRegMem(r, base Reg, disp int32) {
	a.rex(true, r, base)
	a.emit(0x3B)
	a.mem(byte(r), base, disp)
}

// CmpByteMemImm compares the byte at [base+disp] with imm
func (a *Assembler) CmpByteMemImm(base Reg, disp int32, imm byte) {
	a.rex(false, 0, base)
	a.emit(0x80)
	a.mem(7, base, disp)
	a.emit(imm)
}

// MovRegSeg loads the native word at seg:[off] (TEB fields)
func (a *Assembler) MovRegSeg(dst Reg, seg Seg, off uint32) {
	a.emit(byte(seg))
	a.rex(true, dst, 0)
	a.emit(0x8B)
	if a.mode64 {
		// [disp32] without base needs a SIB byte in 64-bit mode
		a.emit(modrm(0, byte(dst), 4), 0x25)
	} else {
		a.emit(modrm(0, byte(dst), 5))
	}
	a.emit32(off)
}

// MovqMemXmm0 stores the low 64 bits of xmm0 to [base+disp]
func (a *Assembler) MovqMemXmm0(base Reg, disp int32) {
	a.emit(0x66)
	a.rex(false, 0, base)
	a.emit(0x0F, 0xD6)
	a.mem(0, base, disp)
}

// FstpMem64 pops st(0) into the double at [base+disp]
func (a *Assembler) FstpMem64(base Reg, disp int32) {
	a.rex(false, 0, base)
	a.emit(0xDD)
	a.mem(3, base, disp)
}

// Jcc emits a short conditional jump to l
func (a *Assembler) Jcc(c Cond, l *Label) {
	a.emit(byte(c), 0)
	l.fixups = append(l.fixups, len(a.buf)-1)
}

// Jmp emits a short unconditional jump to l
func (a *Assembler) Jmp(l *Label) {
	a.emit(0xEB, 0)
	l.fixups = append(l.fixups, len(a.buf)-1)
}
