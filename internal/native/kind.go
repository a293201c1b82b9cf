// Package native builds calling-convention-correct native call frames and
// performs guarded calls into foreign code.
package native

import (
	"fmt"
	"math"
	"unsafe"
)

// PtrSize is the size of a native pointer in bytes
const PtrSize = int(unsafe.Sizeof(uintptr(0)))

// Kind is the primitive kind of a native argument or return value
type Kind uint8

const (
	KindInvalid Kind = iota
	KindChar         // 8-bit integer
	KindShort        // 16-bit integer
	KindInt          // 32-bit integer
	KindInt64        // 64-bit integer
	KindFloat        // 32-bit IEEE float
	KindDouble       // 64-bit IEEE float
	KindPtr          // pointer-sized integer
	KindAStr         // 8-bit code unit string
	KindWStr         // 16-bit code unit string
)

var kindNames = [...]string{
	KindInvalid: "Invalid",
	KindChar:    "Char",
	KindShort:   "Short",
	KindInt:     "Int",
	KindInt64:   "Int64",
	KindFloat:   "Float",
	KindDouble:  "Double",
	KindPtr:     "Ptr",
	KindAStr:    "AStr",
	KindWStr:    "WStr",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Size returns the natural width of the kind in bytes
func (k Kind) Size() int {
	switch k {
	case KindChar:
		return 1
	case KindShort:
		return 2
	case KindInt, KindFloat:
		return 4
	case KindInt64, KindDouble:
		return 8
	case KindPtr, KindAStr, KindWStr:
		return PtrSize
	}
	return 0
}

// IsString reports whether the kind is one of the string kinds
func (k Kind) IsString() bool {
	return k == KindAStr || k == KindWStr
}

// IsFloat reports whether the kind is Float or Double
func (k Kind) IsFloat() bool {
	return k == KindFloat || k == KindDouble
}

// Type is the descriptor produced from a type tag: a primitive kind plus the
// orthogonal unsigned and by-address attributes.
type Type struct {
	Kind     Kind
	Unsigned bool
	ByRef    bool
}

// Valid reports whether the descriptor names a real kind
func (t Type) Valid() bool {
	return t.Kind != KindInvalid
}

// Writable reports whether a call may change the argument so that it must be
// copied back to the originating variable afterward.
func (t Type) Writable() bool {
	return t.ByRef || t.Kind.IsString()
}

// PassedSize is the number of bytes the argument occupies in the call frame
func (t Type) PassedSize() int {
	if t.ByRef || t.Kind.IsString() {
		return PtrSize
	}
	return t.Kind.Size()
}

func (t Type) String() string {
	s := t.Kind.String()
	if t.Unsigned {
		s = "U" + s
	}
	if t.ByRef {
		s += "*"
	}
	return s
}

// Extend returns the 64-bit pattern of a scalar truncated to the kind's
// width and then sign- or zero-extended.
func (t Type) Extend(bits uint64) uint64 {
	switch t.Kind {
	case KindChar:
		if t.Unsigned {
			return uint64(uint8(bits))
		}
		return uint64(int64(int8(bits)))
	case KindShort:
		if t.Unsigned {
			return uint64(uint16(bits))
		}
		return uint64(int64(int16(bits)))
	case KindInt:
		if t.Unsigned {
			return uint64(uint32(bits))
		}
		return uint64(int64(int32(bits)))
	case KindFloat:
		return uint64(uint32(bits))
	case KindPtr, KindAStr, KindWStr:
		if PtrSize == 4 {
			if t.Unsigned || t.Kind != KindPtr {
				return uint64(uint32(bits))
			}
			return uint64(int64(int32(bits)))
		}
	}
	return bits
}

// FloatBits encodes f at the kind's width (Float: low 32 bits)
func FloatBits(k Kind, f float64) uint64 {
	if k == KindFloat {
		return uint64(math.Float32bits(float32(f)))
	}
	return math.Float64bits(f)
}

// BitsFloat decodes the raw bits of a Float or Double
func BitsFloat(k Kind, bits uint64) float64 {
	if k == KindFloat {
		return float64(math.Float32frombits(uint32(bits)))
	}
	return math.Float64frombits(bits)
}
