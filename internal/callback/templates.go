// Package callback implements RegisterCallback: it generates small machine
// code trampolines that native code can call like any C function pointer and
// routes each call into a script function.
package callback

import (
	"encoding/binary"
	"fmt"
	"runtime"

	"hotscript/internal/native/asm"
)

// ABI is the calling convention a trampoline is generated for
type ABI uint8

const (
	ABINone  ABI = iota
	ABIWin64     // Windows x64
	ABISysV      // System V AMD64 (Linux, macOS)
	ABIX86       // 32-bit x86, stdcall or cdecl
)

func (a ABI) String() string {
	switch a {
	case ABIWin64:
		return "win64"
	case ABISysV:
		return "sysv"
	case ABIX86:
		return "x86"
	}
	return "none"
}

// WordSize is the size of one incoming argument slot
func (a ABI) WordSize() int {
	if a == ABIX86 {
		return 4
	}
	return 8
}

// HostABI returns the convention of the running process, ABINone when
// trampolines cannot be generated for it
func HostABI() ABI {
	switch {
	case runtime.GOOS == "windows" && runtime.GOARCH == "amd64":
		return ABIWin64
	case runtime.GOOS == "windows" && runtime.GOARCH == "386":
		return ABIX86
	case (runtime.GOOS == "linux" || runtime.GOOS == "darwin") && runtime.GOARCH == "amd64":
		return ABISysV
	}
	return ABINone
}

// sysvRegArgs is the number of integer arguments System V passes in
// registers. The trampoline spills them to the bottom of its frame; the
// caller's stack arguments start sysvStackArgs bytes above that.
const (
	sysvRegArgs   = 6
	sysvStackArgs = 64
)

// Template is pre-assembled trampoline code. Every trampoline of one ABI
// is a copy with the callback ID, the re-entry stub address and, for
// stdcall, the number of argument bytes to pop patched in at fixed offsets.
//
// Each trampoline makes the incoming arguments addressable as one block,
// then calls stub(block, id) in the platform's native convention and
// returns the stub's result to its own caller.
type Template struct {
	ABI     ABI
	Code    []byte
	IDOff   int // native-word immediate: callback ID
	StubOff int // native-word immediate: re-entry stub address
	PopOff  int // 16-bit immediate of "ret n", -1 when the caller cleans up
}

// Win64: the four register arguments go into the caller-allocated shadow
// space so that they sit directly below the stack arguments.
//
//	mov [rsp+8], rcx
//	mov [rsp+16], rdx
//	mov [rsp+24], r8
//	mov [rsp+32], r9
//	sub rsp, 40
//	lea rcx, [rsp+48]
//	mov rdx, id
//	mov rax, stub
//	call rax
//	add rsp, 40
//	ret
func win64Template() (*Template, error) {
	a := asm.New64()
	a.MovMemReg(asm.RSP, 8, asm.RCX)
	a.MovMemReg(asm.RSP, 16, asm.RDX)
	a.MovMemReg(asm.RSP, 24, asm.R8)
	a.MovMemReg(asm.RSP, 32, asm.R9)
	a.SubRegImm8(asm.RSP, 40)
	a.LeaRegMem(asm.RCX, asm.RSP, 48)
	a.MovRegImm(asm.RDX, 0)
	a.Mark("id")
	a.MovRegImm(asm.RAX, 0)
	a.Mark("stub")
	a.CallReg(asm.RAX)
	a.AddRegImm8(asm.RSP, 40)
	a.Ret()
	return finish(a, ABIWin64, -1)
}

// SysV: there is no shadow space, so the six register arguments are
// spilled to a local block; stack arguments stay where the caller put them,
// sysvStackArgs bytes above the block.
//
//	sub rsp, 56
//	mov [rsp], rdi
//	mov [rsp+8], rsi
//	mov [rsp+16], rdx
//	mov [rsp+24], rcx
//	mov [rsp+32], r8
//	mov [rsp+40], r9
//	mov rdi, rsp
//	mov rsi, id
//	mov rax, stub
//	call rax
//	add rsp, 56
//	ret
func sysvTemplate() (*Template, error) {
	a := asm.New64()
	a.SubRegImm8(asm.RSP, 56)
	for i, r := range []asm.Reg{asm.RDI, asm.RSI, asm.RDX, asm.RCX, asm.R8, asm.R9} {
		a.MovMemReg(asm.RSP, int32(8*i), r)
	}
	a.MovRegReg(asm.RDI, asm.RSP)
	a.MovRegImm(asm.RSI, 0)
	a.Mark("id")
	a.MovRegImm(asm.RAX, 0)
	a.Mark("stub")
	a.CallReg(asm.RAX)
	a.AddRegImm8(asm.RSP, 56)
	a.Ret()
	return finish(a, ABISysV, -1)
}

// x86: the arguments already form a block above the return address. The
// stub is stdcall and pops its own two arguments.
//
//	lea eax, [esp+4]
//	push id
//	push eax
//	mov eax, stub
//	call eax
//	ret n         (stdcall)  or  ret  (cdecl)
func x86Template(cdecl bool) (*Template, error) {
	a := asm.New32()
	a.LeaRegMem(asm.EAX, asm.ESP, 4)
	a.PushImm32(0)
	a.Mark("id")
	a.PushReg(asm.EAX)
	a.MovRegImm(asm.EAX, 0)
	a.Mark("stub")
	a.CallReg(asm.EAX)
	if cdecl {
		a.Ret()
		return finish(a, ABIX86, -1)
	}
	a.RetImm(0)
	a.Mark("pop")
	t, err := finish(a, ABIX86, 0)
	if err != nil {
		return nil, err
	}
	t.PopOff = a.Offset("pop") - 2
	return t, nil
}

// finish records the patch offsets. Each mark sits just past its
// immediate.
func finish(a *asm.Assembler, abi ABI, pop int) (*Template, error) {
	code, err := a.Bytes()
	if err != nil {
		return nil, err
	}
	w := abi.WordSize()
	return &Template{
		ABI:     abi,
		Code:    code,
		IDOff:   a.Offset("id") - w,
		StubOff: a.Offset("stub") - w,
		PopOff:  pop,
	}, nil
}

// NewTemplate assembles the template for abi. cdecl only matters for x86.
func NewTemplate(abi ABI, cdecl bool) (*Template, error) {
	switch abi {
	case ABIWin64:
		return win64Template()
	case ABISysV:
		return sysvTemplate()
	case ABIX86:
		return x86Template(cdecl)
	}
	return nil, fmt.Errorf("no trampoline template for %s", abi)
}

// Instantiate returns a copy of the template with its fields patched.
// paramCount sets the bytes a stdcall trampoline pops on return.
func (t *Template) Instantiate(id, stub uintptr, paramCount int) ([]byte, error) {
	code := make([]byte, len(t.Code))
	copy(code, t.Code)
	if t.ABI.WordSize() == 8 {
		binary.LittleEndian.PutUint64(code[t.IDOff:], uint64(id))
		binary.LittleEndian.PutUint64(code[t.StubOff:], uint64(stub))
	} else {
		binary.LittleEndian.PutUint32(code[t.IDOff:], uint32(id))
		binary.LittleEndian.PutUint32(code[t.StubOff:], uint32(stub))
	}
	if t.PopOff >= 0 {
		n := paramCount * t.ABI.WordSize()
		if n > 0xFFFF {
			return nil, fmt.Errorf("too many callback parameters (%d)", paramCount)
		}
		binary.LittleEndian.PutUint16(code[t.PopOff:], uint16(n))
	}
	return code, nil
}

// ArgAddr returns the address of incoming argument i given the block
// address the trampoline passed to the stub
func (a ABI) ArgAddr(block uintptr, i int) uintptr {
	w := uintptr(a.WordSize())
	if a == ABISysV && i >= sysvRegArgs {
		return block + sysvStackArgs + uintptr(i-sysvRegArgs)*w
	}
	return block + uintptr(i)*w
}

// Contiguous reports whether arguments from index i onward are laid out
// one after another in the block
func (a ABI) Contiguous(i, n int) bool {
	return a != ABISysV || i >= sysvRegArgs || n <= sysvRegArgs
}
