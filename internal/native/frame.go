package native

import (
	"fmt"
	"runtime"
	"unsafe"
)

// Scalar is the closed set of values an argument can carry. A kind that
// does not accept the variant is rejected by NewArg, so an Arg can never
// hold, say, a float for a string parameter.
type Scalar interface {
	accepts(k Kind) bool
}

// Integer carries the raw bits of an integer or pointer argument
type Integer uint64

// Real carries a Float or Double argument
type Real float64

// Text carries a string argument already encoded for the callee, including
// its terminator. The buffer is handed to the callee and may be written to.
type Text []byte

func (Integer) accepts(k Kind) bool {
	switch k {
	case KindChar, KindShort, KindInt, KindInt64, KindPtr:
		return true
	}
	return false
}

func (Real) accepts(k Kind) bool { return k.IsFloat() }

func (Text) accepts(k Kind) bool { return k.IsString() }

// Arg is one argument of a native call: its descriptor plus its value
type Arg struct {
	Type  Type
	Value Scalar
}

// NewArg pairs a descriptor with a value of a matching variant
func NewArg(t Type, v Scalar) (Arg, error) {
	if !t.Valid() {
		return Arg{}, fmt.Errorf("invalid argument type")
	}
	if v == nil || !v.accepts(t.Kind) {
		return Arg{}, fmt.Errorf("%T value for %s argument", v, t)
	}
	if txt, ok := v.(Text); ok && len(txt) == 0 {
		return Arg{}, fmt.Errorf("unterminated %s buffer", t)
	}
	return Arg{Type: t, Value: v}, nil
}

// Frame is the set of arguments of one native call together with the
// storage that by-address arguments point into. It lives for one call.
type Frame struct {
	args   []Arg
	cells  []uint64
	pinner runtime.Pinner
}

// NewFrame prepares the by-address storage for args
func NewFrame(args []Arg) *Frame {
	f := &Frame{args: args, cells: make([]uint64, len(args))}
	for i, a := range args {
		if !a.Type.ByRef {
			continue
		}
		switch v := a.Value.(type) {
		case Integer:
			f.cells[i] = a.Type.Extend(uint64(v))
		case Real:
			f.cells[i] = FloatBits(a.Type.Kind, float64(v))
		case Text:
			f.cells[i] = uint64(uintptr(unsafe.Pointer(&v[0])))
		}
	}
	return f
}

// Len returns the number of arguments
func (f *Frame) Len() int { return len(f.args) }

// Arg returns argument i
func (f *Frame) Arg(i int) Arg { return f.args[i] }

// Pin keeps every buffer the callee can see at a fixed address until Unpin
func (f *Frame) Pin() {
	if len(f.cells) > 0 {
		f.pinner.Pin(&f.cells[0])
	}
	for _, a := range f.args {
		if txt, ok := a.Value.(Text); ok {
			f.pinner.Pin(&txt[0])
		}
	}
}

// Unpin releases the buffers pinned by Pin
func (f *Frame) Unpin() {
	f.pinner.Unpin()
}

// Word returns what is passed in the frame for argument i: the value bits
// for a direct scalar, or an address for strings and by-address arguments.
func (f *Frame) Word(i int) uint64 {
	a := f.args[i]
	if a.Type.ByRef {
		return uint64(uintptr(unsafe.Pointer(&f.cells[i])))
	}
	switch v := a.Value.(type) {
	case Integer:
		return a.Type.Extend(uint64(v))
	case Real:
		return FloatBits(a.Type.Kind, float64(v))
	case Text:
		return uint64(uintptr(unsafe.Pointer(&v[0])))
	}
	return 0
}

// Cell returns the current content of argument i's by-address storage
func (f *Frame) Cell(i int) uint64 {
	return f.cells[i]
}

// CellAddr returns the address of argument i's by-address storage
func (f *Frame) CellAddr(i int) uintptr {
	return uintptr(unsafe.Pointer(&f.cells[i]))
}

// Text returns the buffer of string argument i, or nil
func (f *Frame) Text(i int) []byte {
	if txt, ok := f.args[i].Value.(Text); ok {
		return txt
	}
	return nil
}

// wide reports whether argument i occupies 8 bytes on a 32-bit stack
func (f *Frame) wide32(i int) bool {
	t := f.args[i].Type
	return !t.ByRef && (t.Kind == KindInt64 || t.Kind == KindDouble)
}

// Layout32 is an x86 frame: 32-bit stack words in push order (rightmost
// argument first) and the total number of argument bytes.
type Layout32 struct {
	Push       []uint32
	StackBytes int
}

// Layout32 builds the 32-bit frame. An 8-byte argument is pushed high word
// first so its low word ends up at the lower address.
func (f *Frame) Layout32() Layout32 {
	var l Layout32
	for i := len(f.args) - 1; i >= 0; i-- {
		w := f.Word(i)
		if f.wide32(i) {
			l.Push = append(l.Push, uint32(w>>32), uint32(w))
			l.StackBytes += 8
			continue
		}
		l.Push = append(l.Push, uint32(w))
		l.StackBytes += 4
	}
	return l
}

// MemoryOrder returns the words from the lowest stack address upward, the
// order in which an argument array is handed to a generic caller.
func (l Layout32) MemoryOrder() []uintptr {
	out := make([]uintptr, len(l.Push))
	for i, w := range l.Push {
		out[len(l.Push)-1-i] = uintptr(w)
	}
	return out
}

// Win64RegArgs is the number of arguments passed in registers on Windows x64
const Win64RegArgs = 4

// Layout64 is a Windows x64 frame: the first four arguments in registers
// (RCX, RDX, R8, R9 or XMM0-3 for floats), the rest in stack slots above the
// 32-byte shadow area.
type Layout64 struct {
	Regs      [Win64RegArgs]uint64
	NumRegs   int
	FloatRegs uint8 // bit i set: register slot i is XMMi
	Stack     []uint64
}

// LayoutWin64 builds the Windows x64 frame
func (f *Frame) LayoutWin64() Layout64 {
	var l Layout64
	for i := range f.args {
		w := f.Word(i)
		t := f.args[i].Type
		if i < Win64RegArgs {
			l.Regs[i] = w
			l.NumRegs++
			if !t.ByRef && t.Kind.IsFloat() {
				l.FloatRegs |= 1 << i
			}
			continue
		}
		l.Stack = append(l.Stack, w)
	}
	return l
}

// Slots returns every argument slot in declaration order
func (l Layout64) Slots() []uintptr {
	out := make([]uintptr, 0, l.NumRegs+len(l.Stack))
	for i := 0; i < l.NumRegs; i++ {
		out = append(out, uintptr(l.Regs[i]))
	}
	for _, w := range l.Stack {
		out = append(out, uintptr(w))
	}
	return out
}

// Register file sizes for arguments
const (
	SysVIntRegs      = 6
	SysVFloatRegs    = 8
	AAPCS64IntRegs   = 8
	AAPCS64FloatRegs = 8
)

// RegLayout is a frame split across separate integer and float register
// files. Each file overflows to the stack independently.
type RegLayout struct {
	Int   []uint64
	Float []uint64
	Stack []uint64
}

// LayoutSysV builds the System V AMD64 frame
func (f *Frame) LayoutSysV() RegLayout {
	return f.layoutRegs(SysVIntRegs, SysVFloatRegs)
}

// LayoutAAPCS64 builds the ARM64 frame
func (f *Frame) LayoutAAPCS64() RegLayout {
	return f.layoutRegs(AAPCS64IntRegs, AAPCS64FloatRegs)
}

func (f *Frame) layoutRegs(intRegs, floatRegs int) RegLayout {
	var l RegLayout
	for i := range f.args {
		w := f.Word(i)
		t := f.args[i].Type
		if !t.ByRef && t.Kind.IsFloat() {
			if len(l.Float) < floatRegs {
				l.Float = append(l.Float, w)
				continue
			}
		} else if len(l.Int) < intRegs {
			l.Int = append(l.Int, w)
			continue
		}
		l.Stack = append(l.Stack, w)
	}
	return l
}
