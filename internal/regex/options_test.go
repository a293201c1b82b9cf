package regex

import "testing"

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		prefix int
		check  func(Options) bool
	}{
		{"no prefix", "abc", 0, func(o Options) bool { return o == Options{} }},
		{"case insensitive", "i)abc", 2, func(o Options) bool { return o.IgnoreCase }},
		{"several letters", "imsx)a", 5, func(o Options) bool {
			return o.IgnoreCase && o.Multiline && o.DotAll && o.Extended
		}},
		{"spaces between letters", "i m)a", 4, func(o Options) bool { return o.IgnoreCase && o.Multiline }},
		{"tab", "\tA)a", 3, func(o Options) bool { return o.Anchored }},
		{"unknown letter", "iq)abc", 0, func(o Options) bool { return o == Options{} }},
		{"no closing paren", "im", 0, func(o Options) bool { return o == Options{} }},
		{"group is not a prefix", "(a)", 0, func(o Options) bool { return o == Options{} }},
		{"empty prefix", ")a", 1, func(o Options) bool { return o == Options{} }},
		{"linefeed", "\n)a", 2, func(o Options) bool { return o.Newline == NewlineLF }},
		{"carriage return", "\r)a", 2, func(o Options) bool { return o.Newline == NewlineCR }},
		{"crlf", "\r\n)a", 3, func(o Options) bool { return o.Newline == NewlineCRLF && o.CRLFIsNewline() }},
		{"any newline", "\a)a", 2, func(o Options) bool { return o.Newline == NewlineAny && o.CRLFIsNewline() }},
		{"study and callout", "SC)a", 3, func(o Options) bool { return o.Study && o.AutoCallout }},
		{"rest", "DJUX)a", 5, func(o Options) bool {
			return o.DollarEndOnly && o.DupNames && o.Ungreedy && o.Extra
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, n := ParseOptions(tt.raw)
			if n != tt.prefix {
				t.Errorf("expected prefix length %d, got %d", tt.prefix, n)
			}
			if !tt.check(o) {
				t.Errorf("unexpected options %+v", o)
			}
		})
	}
}

func TestOptionsString(t *testing.T) {
	o, _ := ParseOptions("xi\r\n)")
	if got := o.String(); got != "ix\r\n" {
		t.Errorf("expected %q, got %q", "ix\r\n", got)
	}
	if (Options{}).CRLFIsNewline() {
		t.Errorf("expected the default newline mode to treat CR and LF separately")
	}
}
