package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// Value is any script value: nil (empty), int64, float64, string, *Object,
// *Func, *NativeFunction, or *Var when a variable itself is passed.
type Value interface{}

// Var is a named script variable. Capacity is the byte size reserved for the
// variable when it is used as a native buffer; zero means "just the string".
type Var struct {
	Name     string
	Value    Value
	Capacity int
}

// Object represents a script object with string keys
type Object struct {
	Items map[string]Value
	mu    sync.RWMutex // Thread-safe access
}

// NativeFunction represents a built-in function
type NativeFunction struct {
	Name     string
	MinArgs  int
	MaxArgs  int // -1 for unlimited
	Function func(in *Interp, args []Value) (Value, error)
}

// NewVar creates a variable holding v
func NewVar(name string, v Value) *Var {
	return &Var{Name: name, Value: v}
}

// Set assigns a new value
func (v *Var) Set(val Value) {
	v.Value = val
}

// String returns the variable's value as a string
func (v *Var) String() string {
	return ToString(v.Value)
}

// NewObject creates a new, empty object
func NewObject() *Object {
	return &Object{
		Items: make(map[string]Value),
	}
}

// Get returns the value stored under key, case-insensitively
func (o *Object) Get(key string) (Value, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.Items[strings.ToLower(key)]
	return v, ok
}

// Set stores val under key
func (o *Object) Set(key string, val Value) {
	o.mu.Lock()
	o.Items[strings.ToLower(key)] = val
	o.mu.Unlock()
}

// Deref returns the value held by a variable reference, or v itself
func Deref(v Value) Value {
	if vr, ok := v.(*Var); ok {
		return vr.Value
	}
	return v
}

// ValueType returns the type of a value as a string
func ValueType(val Value) string {
	switch v := val.(type) {
	case nil:
		return "empty"
	case int64, int:
		return "integer"
	case float64:
		return "float"
	case string:
		return "string"
	case *Object:
		return "object"
	case *Func:
		return "function"
	case *NativeFunction:
		return "native_function"
	case *Var:
		return ValueType(v.Value)
	default:
		return "unknown"
	}
}

// IsEmpty reports whether val is the empty value or the empty string
func IsEmpty(val Value) bool {
	switch v := Deref(val).(type) {
	case nil:
		return true
	case string:
		return v == ""
	default:
		return false
	}
}

// ToString converts a value to a string representation
func ToString(val Value) string {
	switch v := val.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return formatFloat(v)
	case string:
		return v
	case *Var:
		return ToString(v.Value)
	case *Object:
		return "<object>"
	case *Func:
		return fmt.Sprintf("<fn %s>", v.Name)
	case *NativeFunction:
		return fmt.Sprintf("<native %s>", v.Name)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func formatFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', 6, 64)
	return s
}

// ParseNumber parses a numeric string the way the interpreter does: leading
// and trailing whitespace is ignored, integers may be decimal or 0x-hex and
// carry a sign. ok is false when s is not a pure number.
func ParseNumber(s string) (Value, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	if i, ok := parseInteger(s); ok {
		return i, true
	}
	if strings.ContainsAny(s, "xX") {
		return nil, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, false
	}
	return f, true
}

func parseInteger(s string) (int64, bool) {
	neg := false
	body := s
	switch {
	case strings.HasPrefix(body, "-"):
		neg = true
		body = body[1:]
	case strings.HasPrefix(body, "+"):
		body = body[1:]
	}
	if body == "" {
		return 0, false
	}
	var u uint64
	var err error
	if len(body) > 2 && (body[:2] == "0x" || body[:2] == "0X") {
		u, err = strconv.ParseUint(body[2:], 16, 64)
	} else {
		u, err = strconv.ParseUint(body, 10, 64)
	}
	if err != nil {
		return 0, false
	}
	// Magnitudes above MaxInt64 wrap, so a 64-bit unsigned value written in
	// decimal keeps its bit pattern.
	i := int64(u)
	if neg {
		i = -i
	}
	return i, true
}

// ParseUnsigned parses s as an unsigned 64-bit integer without going through
// a signed parser, so values above MaxInt64 keep their magnitude.
func ParseUnsigned(s string) (uint64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.HasPrefix(s, "-") {
		i, ok := parseInteger(s)
		return uint64(i), ok
	}
	s = strings.TrimPrefix(s, "+")
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		u, err := strconv.ParseUint(s[2:], 16, 64)
		return u, err == nil
	}
	u, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		if f, ferr := strconv.ParseFloat(s, 64); ferr == nil {
			return uint64(f), true
		}
		return 0, false
	}
	return u, true
}

// IsPureInteger reports whether val is an integer or a string holding one
func IsPureInteger(val Value) bool {
	switch v := Deref(val).(type) {
	case int64, int:
		return true
	case string:
		_, ok := parseInteger(strings.TrimSpace(v))
		return ok
	default:
		return false
	}
}

// ToInt64 converts a value to a signed 64-bit integer. Floats truncate.
func ToInt64(val Value) int64 {
	switch v := Deref(val).(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		n, ok := ParseNumber(v)
		if !ok {
			return 0
		}
		return ToInt64(n)
	default:
		return 0
	}
}

// ToUint64 converts a value to an unsigned 64-bit integer, parsing strings
// with an unsigned-aware parser.
func ToUint64(val Value) uint64 {
	switch v := Deref(val).(type) {
	case string:
		u, _ := ParseUnsigned(v)
		return u
	case float64:
		if v < 0 {
			return uint64(int64(v))
		}
		return uint64(v)
	default:
		return uint64(ToInt64(v))
	}
}

// ToFloat converts a value to float64
func ToFloat(val Value) float64 {
	switch v := Deref(val).(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case string:
		n, ok := ParseNumber(v)
		if !ok {
			return 0
		}
		return ToFloat(n)
	default:
		return 0
	}
}

// IsNumber reports whether val is numeric, or a string holding a number
func IsNumber(val Value) bool {
	switch v := Deref(val).(type) {
	case int64, int, float64:
		return true
	case string:
		_, ok := ParseNumber(v)
		return ok
	default:
		return false
	}
}
