// Package regex integrates a backtracking regular-expression engine with the
// interpreter: option-prefix parsing, a bounded cache of compiled patterns,
// match results, callouts into script functions and the RegExReplace
// substitution engine.
package regex

import "strings"

// Newline selects which character sequences count as a newline
type Newline uint8

const (
	NewlineDefault Newline = iota
	NewlineLF
	NewlineCR
	NewlineCRLF
	NewlineAnyCRLF
	NewlineAny
)

// Options are the letters of a pattern's option prefix
type Options struct {
	IgnoreCase    bool // i
	Multiline     bool // m
	DotAll        bool // s
	Extended      bool // x
	Anchored      bool // A
	DollarEndOnly bool // D
	DupNames      bool // J
	Ungreedy      bool // U
	Extra         bool // X
	Study         bool // S
	AutoCallout   bool // C
	Newline       Newline
}

// CRLFIsNewline reports whether a CR LF pair is one logical newline
func (o Options) CRLFIsNewline() bool {
	switch o.Newline {
	case NewlineCRLF, NewlineAnyCRLF, NewlineAny:
		return true
	}
	return false
}

// String renders the options back into prefix form, without the ')'
func (o Options) String() string {
	var b strings.Builder
	for _, f := range []struct {
		on bool
		c  byte
	}{
		{o.IgnoreCase, 'i'}, {o.Multiline, 'm'}, {o.DotAll, 's'}, {o.Extended, 'x'},
		{o.Anchored, 'A'}, {o.DollarEndOnly, 'D'}, {o.DupNames, 'J'}, {o.Ungreedy, 'U'},
		{o.Extra, 'X'}, {o.Study, 'S'}, {o.AutoCallout, 'C'},
	} {
		if f.on {
			b.WriteByte(f.c)
		}
	}
	switch o.Newline {
	case NewlineLF:
		b.WriteByte('\n')
	case NewlineCR:
		b.WriteByte('\r')
	case NewlineCRLF:
		b.WriteString("\r\n")
	case NewlineAny:
		b.WriteByte('\a')
	}
	return b.String()
}

// ParseOptions splits the option prefix off raw. The prefix is a run of
// option letters, newline characters, spaces and tabs closed by ')'. If any
// other character comes first, or no ')' closes the run, raw has no prefix
// and all of it is the pattern.
func ParseOptions(raw string) (Options, int) {
	var o Options
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case ')':
			return o, i + 1
		case 'i':
			o.IgnoreCase = true
		case 'm':
			o.Multiline = true
		case 's':
			o.DotAll = true
		case 'x':
			o.Extended = true
		case 'A':
			o.Anchored = true
		case 'D':
			o.DollarEndOnly = true
		case 'J':
			o.DupNames = true
		case 'U':
			o.Ungreedy = true
		case 'X':
			o.Extra = true
		case 'S':
			o.Study = true
		case 'C':
			o.AutoCallout = true
		case '\n':
			o.Newline = NewlineLF
		case '\r':
			if i+1 < len(raw) && raw[i+1] == '\n' {
				o.Newline = NewlineCRLF
				i++
			} else {
				o.Newline = NewlineCR
			}
		case '\a':
			o.Newline = NewlineAny
		case ' ', '\t':
		default:
			return Options{}, 0
		}
	}
	return Options{}, 0
}
