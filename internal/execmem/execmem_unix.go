//go:build linux || darwin || freebsd

package execmem

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

func allocCode(code []byte, size int) (uintptr, error) {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, fmt.Errorf("execmem: mmap: %w", err)
	}
	copy(b, code)
	if err := unix.Mprotect(b, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		unix.Munmap(b)
		return 0, fmt.Errorf("execmem: mprotect: %w", err)
	}
	return uintptr(unsafe.Pointer(&b[0])), nil
}

func allocData(size int) ([]byte, error) {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("execmem: mmap: %w", err)
	}
	return b, nil
}
