package regex

import (
	"strings"
	"testing"
)

func newTestMatcher() *Matcher {
	return &Matcher{Cache: NewCache(NewRegexp2Engine(), 16), Origin: OriginMain}
}

func TestReplace(t *testing.T) {
	tests := []struct {
		name     string
		haystack string
		needle   string
		repl     string
		limit    int
		start    int
		want     string
		count    int
	}{
		{"empty haystack", "", "a*", "X", -1, 1, "X", 1},
		{"empty match after full match", "aaa", "a*", "X", -1, 1, "XX", 2},
		{"adjacent empty and non-empty", "ABC", "Z*|A", "x", -1, 1, "xxxBxCx", 5},
		{"no match", "abc", "z", "X", -1, 1, "abc", 0},
		{"limit", "aaa", "a", "b", 2, 1, "bba", 2},
		{"zero limit", "aaa", "a", "b", 0, 1, "aaa", 0},
		{"start position keeps prefix", "abcabc", "a", "X", -1, 4, "abcXbc", 1},
		{"negative start counts from end", "abcabc", "c", "X", -1, 0, "abcabX", 1},
		{"start beyond end", "abc", "a", "X", -1, 10, "abc", 0},
		{"dollar escape", "a", "a", "$$", -1, 1, "$", 1},
		{"group reference", "john smith", `(\w+) (\w+)`, "$2, $1", -1, 1, "smith, john", 1},
		{"braced group", "ab", "(a)(b)", "${2}${1}", -1, 1, "ba", 1},
		{"whole match", "ab", "b", "[$0]", -1, 1, "a[b]", 1},
		{"out of range group", "ab", "a", "[$9]", -1, 1, "[]b", 1},
		{"out of range braced group", "ab", "a", "[${12}]", -1, 1, "[]b", 1},
		{"named group not taken", "ab", "(?<x>z)|(?<y>a)", "[${x}${y}]", -1, 1, "[a]b", 1},
		{"unknown name stays literal", "a", "a", "${nope}", -1, 1, "${nope}", 1},
		{"unclosed brace stays literal", "a", "(a)", "${1", -1, 1, "${1", 1},
		{"trailing dollar", "a", "a", "x$", -1, 1, "x$", 1},
		{"dollar before letter", "a", "a", "$q", -1, 1, "$q", 1},
		{"upper", "hello world", `(\w+) (\w+)`, "$U1 $2", -1, 1, "HELLO world", 1},
		{"lower braced", "HELLO", `(?<w>\w+)`, "$L{w}!", -1, 1, "hello!", 1},
		{"title", "hello wORLD", `.+`, "$T0", -1, 1, "Hello World", 1},
		{"case letter without reference", "a", "a", "$Ux", -1, 1, "$Ux", 1},
		{"case applies to the group only", "ab", "(a)", "x$U1y", -1, 1, "xAyb", 1},
		{"multibyte characters", "héllo", "é*", "-", -1, 1, "-h--l-l-o-", 6},
		{"crlf is one newline", "a\r\nb", "\r\n)x*", "-", -1, 1, "-a-\r\n-b-", 4},
		{"cr and lf apart", "a\r\nb", "x*", "-", -1, 1, "-a-\r-\n-b-", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMatcher()
			got, n, err := m.Replace(tt.haystack, tt.needle, tt.repl, tt.limit, tt.start)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
			if n != tt.count {
				t.Errorf("expected %d replacements, got %d", tt.count, n)
			}
		})
	}
}

func TestReplaceCompileError(t *testing.T) {
	m := newTestMatcher()
	if _, _, err := m.Replace("abc", "(", "x", -1, 1); err == nil {
		t.Errorf("expected a compile error")
	}
}

func TestSubstituteSizeMatchesOutput(t *testing.T) {
	subject := []rune("añb")
	ov := []int{1, 2, 1, 2}
	for _, repl := range []string{"$U1$1", "[${1}]", "$$€", "$T{1}x"} {
		var size sizer
		substitute(&size, subject, []string{"", ""}, repl, ov)
		var out strings.Builder
		substitute(&out, subject, []string{"", ""}, repl, ov)
		if int(size) != len(out.String()) {
			t.Errorf("%q: expected size %d, got %d", repl, len(out.String()), size)
		}
	}
}

func TestStartOffset(t *testing.T) {
	tests := []struct {
		pos, n, want int
	}{
		{1, 5, 0},
		{3, 5, 2},
		{6, 5, 5},
		{9, 5, 5},
		{0, 5, 4},
		{-1, 5, 3},
		{-9, 5, 0},
		{1, 0, 0},
		{0, 0, 0},
	}
	for _, tt := range tests {
		if got := StartOffset(tt.pos, tt.n); got != tt.want {
			t.Errorf("StartOffset(%d, %d): expected %d, got %d", tt.pos, tt.n, tt.want, got)
		}
	}
}
