//go:build windows && (amd64 || 386)

package native

import (
	"encoding/binary"
	"fmt"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"hotscript/internal/execmem"
)

// maxSyscallArgs is the argument limit of syscall.SyscallN
const maxSyscallArgs = 42

var modkernel32 = windows.NewLazySystemDLL("kernel32.dll")

// guard is the installed thunk, handler and data page
type guard struct {
	data  []byte
	base  uintptr
	thunk uintptr
	depth int
}

func (g *guard) word(slot int) uintptr {
	if PtrSize == 8 {
		return uintptr(binary.LittleEndian.Uint64(g.data[slot*8:]))
	}
	return uintptr(binary.LittleEndian.Uint32(g.data[slot*4:]))
}

func (g *guard) setWord(slot int, v uintptr) {
	if PtrSize == 8 {
		binary.LittleEndian.PutUint64(g.data[slot*8:], uint64(v))
		return
	}
	binary.LittleEndian.PutUint32(g.data[slot*4:], uint32(v))
}

// cell returns the byte view of the cell for nesting depth d
func (g *guard) cell(d int) []byte {
	off := guardHeaderBytes + d*cellStride
	return g.data[off : off+cellStride]
}

func (g *guard) cellAddr(d int) uintptr {
	return g.base + uintptr(guardHeaderBytes+d*cellStride)
}

var (
	guardOnce sync.Once
	theGuard  *guard
	guardErr  error
)

func loadGuard() (*guard, error) {
	guardOnce.Do(func() {
		theGuard, guardErr = installGuard()
	})
	return theGuard, guardErr
}

func installGuard() (*guard, error) {
	data, err := execmem.AllocData(guardHeaderBytes + maxGuardNesting*cellStride)
	if err != nil {
		return nil, err
	}
	g := &guard{data: data, base: uintptr(unsafe.Pointer(&data[0]))}

	code, recoverOff, err := assembleThunk(g.base)
	if err != nil {
		return nil, fmt.Errorf("guard thunk: %w", err)
	}
	if g.thunk, err = execmem.AllocCode(code); err != nil {
		return nil, err
	}
	g.setWord(guardRecover, g.thunk+uintptr(recoverOff))

	lo, hi, err := imageRange()
	if err != nil {
		return nil, err
	}
	g.setWord(guardImageLo, lo)
	g.setWord(guardImageHi, hi)

	hcode, err := assembleHandler(g.base)
	if err != nil {
		return nil, fmt.Errorf("guard handler: %w", err)
	}
	handler, err := execmem.AllocCode(hcode)
	if err != nil {
		return nil, err
	}
	if err := installHandler(g, handler); err != nil {
		return nil, err
	}
	return g, nil
}

// imageRange returns the address range of the executable image
func imageRange() (uintptr, uintptr, error) {
	var h windows.Handle
	if err := windows.GetModuleHandleEx(windows.GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REFCOUNT, nil, &h); err != nil {
		return 0, 0, fmt.Errorf("GetModuleHandleEx: %w", err)
	}
	base := uintptr(h)
	peOff := uintptr(Peek(base+0x3C, 4))
	size := uintptr(Peek(base+peOff+0x50, 4)) // OptionalHeader.SizeOfImage
	return base, base + size, nil
}

type guardInvoker struct{}

func newPlatformInvoker() Invoker {
	return guardInvoker{}
}

// Invoke runs the call through the guard thunk. Nested calls (a callee
// re-entering the interpreter which makes another native call) take the
// next cell. The interpreter makes native calls from one goroutine only.
func (guardInvoker) Invoke(c *Call) (Outcome, error) {
	if c.Fn == 0 {
		return Outcome{}, fmt.Errorf("native call to a nil function pointer")
	}
	g, err := loadGuard()
	if err != nil {
		return Outcome{}, fmt.Errorf("native call guard unavailable: %w", err)
	}
	if g.depth >= maxGuardNesting {
		return Outcome{}, fmt.Errorf("native calls nested deeper than %d", maxGuardNesting)
	}
	words, stackBytes := frameWords(c.Frame)
	if len(words) > maxSyscallArgs {
		return Outcome{}, fmt.Errorf("too many native arguments (%d words, limit %d)", len(words), maxSyscallArgs)
	}

	d := g.depth
	cell := g.cell(d)
	prepareCell(cell, c)
	g.setWord(guardNext, g.cellAddr(d))

	c.Frame.Pin()
	g.depth++
	r1, r2, errno := syscall.SyscallN(g.thunk, words...)
	g.depth--
	c.Frame.Unpin()

	out := Outcome{LastError: uint32(errno)}
	finishOutcome(&out, cell, c, r1, r2, stackBytes)
	return out, nil
}
