package regex

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// searchFunc runs one search from rune offset start and returns the
// ovector of the match, nil when there is none
type searchFunc func(start int, flags ExecFlags) ([]int, error)

// output is where substituted text goes. The first pass counts into a
// sizer, the second writes into a strings.Builder.
type output interface {
	WriteString(s string) (int, error)
	WriteRune(r rune) (int, error)
}

type sizer int

func (s *sizer) WriteString(str string) (int, error) {
	*s += sizer(len(str))
	return len(str), nil
}

func (s *sizer) WriteRune(r rune) (int, error) {
	n := len(string(r))
	*s += sizer(n)
	return n, nil
}

// replaceAll substitutes every match of search in subject at or after
// start, at most limit times when limit is not negative. The text before
// start is kept as is. It returns the result and the replacement count.
//
// After an empty match the next search is anchored at the same position
// and must be non-empty. If that fails the cursor moves on by one
// character, or by two over a CR LF pair when crlf is set.
func replaceAll(subject []rune, names []string, crlf bool, repl string, limit, start int, search searchFunc) (string, int, error) {
	var matches [][]int
	pos := start
	var flags ExecFlags
	for limit != 0 && pos <= len(subject) {
		ov, err := search(pos, flags)
		if err != nil {
			return "", 0, err
		}
		if ov == nil {
			if flags == 0 {
				break
			}
			pos += charLen(subject, pos, crlf)
			flags = 0
			continue
		}
		matches = append(matches, ov)
		if limit > 0 {
			limit--
		}
		pos = ov[1]
		if ov[0] == ov[1] {
			flags = Anchored | NotEmptyAtStart
		} else {
			flags = 0
		}
	}
	if len(matches) == 0 {
		return string(subject), 0, nil
	}

	var size sizer
	emit(&size, subject, names, repl, matches)
	var b strings.Builder
	b.Grow(int(size))
	emit(&b, subject, names, repl, matches)
	return b.String(), len(matches), nil
}

// charLen is the number of runes the cursor skips at pos
func charLen(subject []rune, pos int, crlf bool) int {
	if crlf && pos+1 < len(subject) && subject[pos] == '\r' && subject[pos+1] == '\n' {
		return 2
	}
	return 1
}

// emit writes subject with every match replaced by the expansion of repl
func emit(w output, subject []rune, names []string, repl string, matches [][]int) {
	last := 0
	for _, ov := range matches {
		writeRunes(w, subject[last:ov[0]])
		substitute(w, subject, names, repl, ov)
		last = ov[1]
	}
	writeRunes(w, subject[last:])
}

func writeRunes(w output, rs []rune) {
	for _, r := range rs {
		w.WriteRune(r)
	}
}

// substitute expands one replacement. "$$" is a dollar sign, "$N" is group
// N (one digit) and "${N}" or "${name}" is any group. A U, L or T between
// the '$' and the reference converts that group's text to upper, lower or
// title case. References to groups that did not take part expand to
// nothing. Anything else after a '$' is copied literally.
func substitute(w output, subject []rune, names []string, repl string, ov []int) {
	for i := 0; i < len(repl); {
		if repl[i] != '$' || i+1 >= len(repl) {
			w.WriteString(repl[i : i+1])
			i++
			continue
		}
		if repl[i+1] == '$' {
			w.WriteString("$")
			i += 2
			continue
		}
		j := i + 1
		var transform byte
		switch repl[j] {
		case 'U', 'u', 'L', 'l', 'T', 't':
			transform = repl[j] | 0x20
			j++
		}
		group, next := -1, -1
		if j < len(repl) {
			switch c := repl[j]; {
			case c >= '0' && c <= '9':
				group, next = int(c-'0'), j+1
			case c == '{':
				if end := strings.IndexByte(repl[j+1:], '}'); end >= 0 {
					if n, ok := groupRef(repl[j+1:j+1+end], names); ok {
						group, next = n, j+2+end
					}
				}
			}
		}
		if next < 0 {
			w.WriteString("$")
			i++
			continue
		}
		if 2*group+1 < len(ov) && ov[2*group] >= 0 {
			text := string(subject[ov[2*group]:ov[2*group+1]])
			w.WriteString(convertCase(text, transform))
		}
		i = next
	}
}

// groupRef resolves the content of "${...}". A number is accepted even
// when out of range; it then expands to nothing.
func groupRef(ref string, names []string) (int, bool) {
	if ref == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(ref); err == nil && n >= 0 {
		return n, true
	}
	for i, name := range names {
		if name != "" && name == ref {
			return i, true
		}
	}
	return 0, false
}

func convertCase(s string, transform byte) string {
	switch transform {
	case 'u':
		return cases.Upper(language.Und).String(s)
	case 'l':
		return cases.Lower(language.Und).String(s)
	case 't':
		return cases.Title(language.Und).String(s)
	}
	return s
}
