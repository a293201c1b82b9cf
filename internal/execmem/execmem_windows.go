package execmem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

func allocCode(code []byte, size int) (uintptr, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return 0, fmt.Errorf("execmem: VirtualAlloc: %w", err)
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), code)
	var old uint32
	if err := windows.VirtualProtect(addr, uintptr(size), windows.PAGE_EXECUTE_READ, &old); err != nil {
		windows.VirtualFree(addr, 0, windows.MEM_RELEASE)
		return 0, fmt.Errorf("execmem: VirtualProtect: %w", err)
	}
	return addr, nil
}

func allocData(size int) ([]byte, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, fmt.Errorf("execmem: VirtualAlloc: %w", err)
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}
