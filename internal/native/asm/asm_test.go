package asm

import (
	"bytes"
	"testing"
)

func TestEncodings(t *testing.T) {
	tests := []struct {
		name string
		bits int
		emit func(a *Assembler)
		want []byte
	}{
		{"spill rcx", 64, func(a *Assembler) { a.MovMemReg(RSP, 8, RCX) }, []byte{0x48, 0x89, 0x4C, 0x24, 0x08}},
		{"spill r8", 64, func(a *Assembler) { a.MovMemReg(RSP, 0x18, R8) }, []byte{0x4C, 0x89, 0x44, 0x24, 0x18}},
		{"lea r8", 64, func(a *Assembler) { a.LeaRegMem(R8, RCX, 0x20) }, []byte{0x4C, 0x8D, 0x41, 0x20}},
		{"load r10 from r11", 64, func(a *Assembler) { a.MovRegMem(R10, R11, 8) }, []byte{0x4D, 0x8B, 0x53, 0x08}},
		{"rbp no disp", 64, func(a *Assembler) { a.MovRegMem(RAX, RBP, 0) }, []byte{0x48, 0x8B, 0x45, 0x00}},
		{"r13 no disp", 64, func(a *Assembler) { a.MovRegMem(RAX, R13, 0) }, []byte{0x49, 0x8B, 0x45, 0x00}},
		{"disp32", 64, func(a *Assembler) { a.MovRegMem(RAX, RCX, 0x100) }, []byte{0x48, 0x8B, 0x81, 0x00, 0x01, 0x00, 0x00}},
		{"movabs r11", 64, func(a *Assembler) { a.MovRegImm(R11, 0x1122334455667788) },
			[]byte{0x49, 0xBB, 0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11}},
		{"gs load", 64, func(a *Assembler) { a.MovRegSeg(R11, GS, 0x48) },
			[]byte{0x65, 0x4C, 0x8B, 0x1C, 0x25, 0x48, 0x00, 0x00, 0x00}},
		{"call r10 slot", 64, func(a *Assembler) { a.CallMem(R10, 0x20) }, []byte{0x41, 0xFF, 0x52, 0x20}},
		{"call rax", 64, func(a *Assembler) { a.CallReg(RAX) }, []byte{0xFF, 0xD0}},
		{"movq xmm0", 64, func(a *Assembler) { a.MovqMemXmm0(RBX, 0x28) }, []byte{0x66, 0x0F, 0xD6, 0x43, 0x28}},
		{"movq xmm0 r12", 64, func(a *Assembler) { a.MovqMemXmm0(R12, 0x28) }, []byte{0x66, 0x41, 0x0F, 0xD6, 0x44, 0x24, 0x28}},
		{"sub rsp", 64, func(a *Assembler) { a.SubRegImm8(RSP, 0x28) }, []byte{0x48, 0x83, 0xEC, 0x28}},
		{"add rsp", 64, func(a *Assembler) { a.AddRegImm8(RSP, 0x38) }, []byte{0x48, 0x83, 0xC4, 0x38}},
		{"push r12", 64, func(a *Assembler) { a.PushReg(R12) }, []byte{0x41, 0x54}},
		{"pop rax", 64, func(a *Assembler) { a.PopReg(RAX) }, []byte{0x58}},
		{"push slot", 64, func(a *Assembler) { a.PushMem(R10, 8) }, []byte{0x41, 0xFF, 0x72, 0x08}},
		{"xor eax", 64, func(a *Assembler) { a.XorReg32(RAX) }, []byte{0x31, 0xC0}},
		{"abs load", 32, func(a *Assembler) { a.MovRegMem(EDX, Abs, 0x1000) }, []byte{0x8B, 0x15, 0x00, 0x10, 0x00, 0x00}},
		{"fs load", 32, func(a *Assembler) { a.MovRegSeg(EAX, FS, 0x24) }, []byte{0x64, 0x8B, 0x05, 0x24, 0x00, 0x00, 0x00}},
		{"lea eax", 32, func(a *Assembler) { a.LeaRegMem(EAX, ESP, 4) }, []byte{0x8D, 0x44, 0x24, 0x04}},
		{"push imm", 32, func(a *Assembler) { a.PushImm32(0x12345678) }, []byte{0x68, 0x78, 0x56, 0x34, 0x12}},
		{"mov eax imm", 32, func(a *Assembler) { a.MovRegImm(EAX, 0xCAFEBABE) }, []byte{0xB8, 0xBE, 0xBA, 0xFE, 0xCA}},
		{"ret 8", 32, func(a *Assembler) { a.RetImm(8) }, []byte{0xC2, 0x08, 0x00}},
		{"fstp", 32, func(a *Assembler) { a.FstpMem64(EBX, 0x30) }, []byte{0xDD, 0x5B, 0x30}},
		{"cmp byte", 32, func(a *Assembler) { a.CmpByteMemImm(EBX, 0x2C, 0) }, []byte{0x80, 0x7B, 0x2C, 0x00}},
		{"jmp eax", 32, func(a *Assembler) { a.JmpReg(EAX) }, []byte{0xFF, 0xE0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New32()
			if tt.bits == 64 {
				a = New64()
			}
			tt.emit(a)
			got, err := a.Bytes()
			if err != nil {
				t.Fatalf("Bytes: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("got % X, want % X", got, tt.want)
			}
		})
	}
}

func TestLabels(t *testing.T) {
	a := New64()
	skip := a.NewLabel()
	back := a.NewLabel()
	a.Bind(back)
	a.Jcc(CondE, skip)
	a.Ret()
	a.Jmp(back)
	a.Bind(skip)
	got, err := a.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	want := []byte{0x74, 0x03, 0xC3, 0xEB, 0xFB}
	if !bytes.Equal(got, want) {
		t.Errorf("got % X, want % X", got, want)
	}
}

func TestUnboundLabel(t *testing.T) {
	a := New32()
	a.Jmp(a.NewLabel())
	if _, err := a.Bytes(); err == nil {
		t.Fatal("expected error for unbound label")
	}
}

func TestMarks(t *testing.T) {
	a := New64()
	a.Ret()
	a.Mark("here")
	a.Ret()
	if off := a.Offset("here"); off != 1 {
		t.Errorf("Offset = %d, want 1", off)
	}
	if a.Len() != 2 {
		t.Errorf("Len = %d, want 2", a.Len())
	}
}

func TestAbsoluteOperandRejectedIn64BitMode(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	New64().MovRegMem(RAX, Abs, 0)
}
