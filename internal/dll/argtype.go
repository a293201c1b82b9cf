// Package dll implements DllCall: type tag parsing, call target
// resolution, argument coercion and the copy-back of output arguments.
package dll

import (
	"strings"

	"hotscript/internal/native"
)

var keywords = map[string]native.Kind{
	"int":    native.KindInt,
	"int64":  native.KindInt64,
	"short":  native.KindShort,
	"char":   native.KindChar,
	"float":  native.KindFloat,
	"double": native.KindDouble,
	"ptr":    native.KindPtr,
	"str":    native.NativeString,
	"astr":   native.KindAStr,
	"wstr":   native.KindWStr,
}

// ParseArgType converts a type tag such as "UInt", "Str*" or "Int64 P" into
// a descriptor. fallback is consulted only when tag is blank. An
// unrecognized tag yields a descriptor with KindInvalid.
func ParseArgType(tag, fallback string) native.Type {
	s := strings.TrimSpace(tag)
	if s == "" {
		s = strings.TrimSpace(fallback)
	}
	var t native.Type
	if n := len(s); n > 1 {
		switch s[n-1] {
		case '*', 'p', 'P':
			t.ByRef = true
			s = strings.TrimRight(s[:n-1], " \t")
		}
	}
	s = strings.ToLower(s)
	if k, ok := keywords[s]; ok {
		t.Kind = k
		return t
	}
	if strings.HasPrefix(s, "u") {
		if k, ok := keywords[s[1:]]; ok {
			t.Kind = k
			t.Unsigned = !k.IsFloat() && !k.IsString()
			return t
		}
	}
	return native.Type{}
}
