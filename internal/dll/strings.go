package dll

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"

	"hotscript/internal/native"
)

// Codec converts script strings to and from the two native string widths
type Codec struct {
	ansi encoding.Encoding
	wide encoding.Encoding
}

// NewCodec returns a codec whose AStr encoding is the named IANA charset.
// An empty name or UTF-8 selects UTF-8.
func NewCodec(charset string) (*Codec, error) {
	c := &Codec{
		ansi: unicode.UTF8,
		wide: unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM),
	}
	switch strings.ToLower(charset) {
	case "", "utf-8", "utf8":
		return c, nil
	}
	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil {
		return nil, fmt.Errorf("unknown code page %q: %w", charset, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("code page %q has no encoder", charset)
	}
	c.ansi = enc
	return c, nil
}

func (c *Codec) encoding(k native.Kind) encoding.Encoding {
	if k == native.KindWStr {
		return c.wide
	}
	return c.ansi
}

func unitSize(k native.Kind) int {
	if k == native.KindWStr {
		return 2
	}
	return 1
}

// Encode returns s as a NUL-terminated buffer of kind k. The buffer is at
// least capacity bytes long plus the terminator, zero filled, so a callee
// may write up to capacity bytes into it.
func (c *Codec) Encode(k native.Kind, s string, capacity int) (native.Text, error) {
	enc := encoding.ReplaceUnsupported(c.encoding(k).NewEncoder())
	b, err := enc.Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", k, err)
	}
	unit := unitSize(k)
	size := len(b)
	if capacity > size {
		size = capacity - capacity%unit
	}
	buf := make([]byte, size+unit)
	copy(buf, b)
	return buf, nil
}

// Decode converts a buffer of kind k up to its first terminator
func (c *Codec) Decode(k native.Kind, buf []byte) (string, error) {
	buf = terminated(k, buf)
	out, err := c.encoding(k).NewDecoder().Bytes(buf)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", k, err)
	}
	return string(out), nil
}

// Terminate writes a terminator at the last unit of buf so a callee that
// filled the buffer without one cannot make a later scan run past it
func Terminate(k native.Kind, buf []byte) {
	unit := unitSize(k)
	if len(buf) < unit {
		return
	}
	for i := len(buf) - unit; i < len(buf); i++ {
		buf[i] = 0
	}
}

func terminated(k native.Kind, buf []byte) []byte {
	if k != native.KindWStr {
		if i := bytes.IndexByte(buf, 0); i >= 0 {
			return buf[:i]
		}
		return buf
	}
	for i := 0; i+1 < len(buf); i += 2 {
		if buf[i] == 0 && buf[i+1] == 0 {
			return buf[:i]
		}
	}
	return buf[:len(buf)&^1]
}

// ReadString decodes the NUL-terminated string of kind k at addr
func (c *Codec) ReadString(k native.Kind, addr uintptr) (string, error) {
	if addr == 0 {
		return "", nil
	}
	if k == native.KindWStr {
		return native.ReadWString(addr), nil
	}
	return c.Decode(k, native.ReadCString(addr))
}
