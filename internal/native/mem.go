package native

import (
	"unicode/utf16"
	"unsafe"
)

// maxStringScan bounds how far a NUL terminator is searched for
const maxStringScan = 1 << 24

// ptr converts an address obtained from native code into a pointer
func ptr(addr uintptr) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&addr))
}

// ReadCString returns the NUL-terminated 8-bit string at addr
func ReadCString(addr uintptr) []byte {
	if addr == 0 {
		return nil
	}
	p := ptr(addr)
	n := 0
	for n < maxStringScan && *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(p), n))
	return out
}

// ReadWString returns the NUL-terminated UTF-16 string at addr
func ReadWString(addr uintptr) string {
	if addr == 0 {
		return ""
	}
	p := ptr(addr)
	n := 0
	for n < maxStringScan && *(*uint16)(unsafe.Add(p, 2*n)) != 0 {
		n++
	}
	return string(utf16.Decode(unsafe.Slice((*uint16)(p), n)))
}

// Peek reads size (1, 2, 4 or 8) bytes at addr
func Peek(addr uintptr, size int) uint64 {
	p := ptr(addr)
	switch size {
	case 1:
		return uint64(*(*uint8)(p))
	case 2:
		return uint64(*(*uint16)(p))
	case 4:
		return uint64(*(*uint32)(p))
	default:
		return *(*uint64)(p)
	}
}

// Poke writes the low size bytes of v at addr
func Poke(addr uintptr, size int, v uint64) {
	p := ptr(addr)
	switch size {
	case 1:
		*(*uint8)(p) = uint8(v)
	case 2:
		*(*uint16)(p) = uint16(v)
	case 4:
		*(*uint32)(p) = uint32(v)
	default:
		*(*uint64)(p) = v
	}
}

// Bytes returns a view of n bytes of native memory at addr
func Bytes(addr uintptr, n int) []byte {
	if addr == 0 || n <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(ptr(addr)), n)
}
