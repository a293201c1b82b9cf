package native

import (
	"testing"
	"unicode/utf16"
	"unsafe"
)

// memory read and written through integer addresses; globals do not move
var (
	pokeTarget uint64
	narrowText = []byte("hello\x00junk")
	wideText   = append(utf16.Encode([]rune("wörld")), 0, 'x')
)

func TestPeekPoke(t *testing.T) {
	addr := uintptr(unsafe.Pointer(&pokeTarget))
	Poke(addr, 8, 0x1122334455667788)
	tests := []struct {
		size int
		want uint64
	}{
		{1, 0x88},
		{2, 0x7788},
		{4, 0x55667788},
		{8, 0x1122334455667788},
	}
	for _, tt := range tests {
		if got := Peek(addr, tt.size); got != tt.want {
			t.Errorf("Peek(%d) = %#x, want %#x", tt.size, got, tt.want)
		}
	}
	Poke(addr, 2, 0xFFFF)
	if pokeTarget != 0x112233445566FFFF {
		t.Errorf("after Poke(2) got %#x", pokeTarget)
	}
}

func TestReadStrings(t *testing.T) {
	if got := string(ReadCString(uintptr(unsafe.Pointer(&narrowText[0])))); got != "hello" {
		t.Errorf("ReadCString = %q, want hello", got)
	}
	if got := ReadWString(uintptr(unsafe.Pointer(&wideText[0]))); got != "wörld" {
		t.Errorf("ReadWString = %q, want wörld", got)
	}
	if ReadCString(0) != nil || ReadWString(0) != "" {
		t.Error("nil address must read as empty")
	}
}
