package regex

import (
	"strconv"

	"hotscript/internal/vm"
)

// Match is an immutable snapshot of one match. Only the part of the
// haystack spanning the captured groups is copied.
type Match struct {
	span    []rune
	base    int   // rune offset of span in the haystack
	offsets []int // pairs of haystack rune offsets, -1 if unset
	names   []string
	mark    string
}

// NewMatch builds a snapshot from an ovector. Groups past the ovector or
// with negative offsets did not participate.
func NewMatch(subject []rune, ovector []int, names []string, mark string) *Match {
	n := len(ovector) / 2
	if len(names) > n {
		n = len(names)
	}
	m := &Match{offsets: make([]int, 2*n), names: names, mark: mark}
	lo, hi := -1, -1
	for i := 0; i < n; i++ {
		s, e := -1, -1
		if 2*i+1 < len(ovector) && ovector[2*i] >= 0 && ovector[2*i+1] >= ovector[2*i] {
			s, e = ovector[2*i], ovector[2*i+1]
			if lo < 0 || s < lo {
				lo = s
			}
			if e > hi {
				hi = e
			}
		}
		m.offsets[2*i], m.offsets[2*i+1] = s, e
	}
	if lo >= 0 {
		m.base = lo
		m.span = append([]rune(nil), subject[lo:hi]...)
	}
	return m
}

// Count returns the number of capturing groups, not counting group 0
func (m *Match) Count() int { return len(m.offsets)/2 - 1 }

// Participated reports whether group i captured anything
func (m *Match) Participated(i int) bool {
	return i >= 0 && 2*i < len(m.offsets) && m.offsets[2*i] >= 0
}

// Offset returns the rune offset of group i in the haystack, -1 if unset
func (m *Match) Offset(i int) int {
	if !m.Participated(i) {
		return -1
	}
	return m.offsets[2*i]
}

// Pos returns the 1-based position of group i, 0 if it did not participate
func (m *Match) Pos(i int) int {
	return m.Offset(i) + 1
}

// Len returns the length of group i in characters
func (m *Match) Len(i int) int {
	if !m.Participated(i) {
		return 0
	}
	return m.offsets[2*i+1] - m.offsets[2*i]
}

// Runes returns the text of group i
func (m *Match) Runes(i int) []rune {
	if !m.Participated(i) {
		return nil
	}
	return m.span[m.offsets[2*i]-m.base : m.offsets[2*i+1]-m.base]
}

// Value returns the text of group i, "" if it did not participate
func (m *Match) Value(i int) string {
	return string(m.Runes(i))
}

// Name returns the name of group i, "" if unnamed
func (m *Match) Name(i int) string {
	if i >= 0 && i < len(m.names) {
		return m.names[i]
	}
	return ""
}

// Group returns the number of the group called name
func (m *Match) Group(name string) (int, bool) {
	for i, n := range m.names {
		if n != "" && n == name {
			return i, true
		}
	}
	return 0, false
}

// Mark returns the last (*MARK) name passed, if any
func (m *Match) Mark() string { return m.mark }

// Object exposes the match to scripts. For every group i it sets "i",
// "Pos<i>" and "Len<i>", and for named groups the same keys by name.
// "Value", "Pos" and "Len" describe the overall match.
func (m *Match) Object() *vm.Object {
	o := vm.NewObject()
	set := func(key string, i int) {
		o.Set(key, m.Value(i))
		o.Set("Pos"+key, int64(m.Pos(i)))
		o.Set("Len"+key, int64(m.Len(i)))
	}
	for i := 0; i <= m.Count(); i++ {
		set(strconv.Itoa(i), i)
		if name := m.Name(i); name != "" {
			set(name, i)
		}
	}
	o.Set("Value", m.Value(0))
	o.Set("Pos", int64(m.Pos(0)))
	o.Set("Len", int64(m.Len(0)))
	o.Set("Count", int64(m.Count()))
	if m.mark != "" {
		o.Set("Mark", m.mark)
	}
	return o
}
