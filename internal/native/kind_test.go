package native

import (
	"math"
	"testing"
)

func TestTypeExtend(t *testing.T) {
	tests := []struct {
		name string
		typ  Type
		in   uint64
		want uint64
	}{
		{"char sign", Type{Kind: KindChar}, 0xFF, math.MaxUint64},
		{"uchar", Type{Kind: KindChar, Unsigned: true}, 0x1FF, 0xFF},
		{"short sign", Type{Kind: KindShort}, 0x8000, 0xFFFFFFFFFFFF8000},
		{"ushort", Type{Kind: KindShort, Unsigned: true}, 0x18000, 0x8000},
		{"int sign", Type{Kind: KindInt}, 0xFFFFFFFF, math.MaxUint64},
		{"uint", Type{Kind: KindInt, Unsigned: true}, 0x1FFFFFFFF, 0xFFFFFFFF},
		{"int64", Type{Kind: KindInt64}, 0x8000000000000000, 0x8000000000000000},
		{"float", Type{Kind: KindFloat}, 0xAAAAAAAA3F800000, 0x3F800000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.typ.Extend(tt.in); got != tt.want {
				t.Errorf("Extend(%#x) = %#x, want %#x", tt.in, got, tt.want)
			}
		})
	}
}

func TestTypeString(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{Type{Kind: KindInt}, "Int"},
		{Type{Kind: KindInt, Unsigned: true, ByRef: true}, "UInt*"},
		{Type{Kind: KindWStr}, "WStr"},
		{Type{Kind: KindInvalid}, "Invalid"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestFloatBits(t *testing.T) {
	for _, f := range []float64{0, 1.5, -2.25, math.Inf(1), math.SmallestNonzeroFloat64} {
		if got := BitsFloat(KindDouble, FloatBits(KindDouble, f)); got != f {
			t.Errorf("Double %v round-tripped to %v", f, got)
		}
	}
	if got := FloatBits(KindFloat, 1.0); got != 0x3F800000 {
		t.Errorf("FloatBits(Float, 1) = %#x, want 0x3F800000", got)
	}
	if got := BitsFloat(KindFloat, 0x3FC00000); got != 1.5 {
		t.Errorf("BitsFloat(Float) = %v, want 1.5", got)
	}
}

func TestPassedSize(t *testing.T) {
	if got := (Type{Kind: KindChar, ByRef: true}).PassedSize(); got != PtrSize {
		t.Errorf("Char* PassedSize = %d, want %d", got, PtrSize)
	}
	if got := (Type{Kind: KindDouble}).PassedSize(); got != 8 {
		t.Errorf("Double PassedSize = %d, want 8", got)
	}
	if !(Type{Kind: KindAStr}).Writable() || (Type{Kind: KindInt}).Writable() {
		t.Error("Writable: strings must be writable, plain Int must not")
	}
}
