package regex

import (
	"hotscript/internal/errors"
	"hotscript/internal/vm"
)

// Matcher runs RegExMatch and RegExReplace against a cache
type Matcher struct {
	Cache  *Cache
	Interp *vm.Interp // runs callouts; nil disables them
	Origin Origin
}

// NewMatcher returns a matcher on the main thread using the shared cache
func NewMatcher(in *vm.Interp) *Matcher {
	return &Matcher{Cache: Shared(), Interp: in, Origin: OriginMain}
}

// StartOffset converts a 1-based StartingPos into a rune offset. A value
// below 1 counts from the end: 0 is the last character, -1 the one before.
// The result is clamped to [0, n].
func StartOffset(startPos, n int) int {
	off := startPos - 1
	if off < 0 {
		off += n
		if off < 0 {
			off = 0
		}
	}
	if off > n {
		off = n
	}
	return off
}

func (m *Matcher) bridge(e *Entry, haystack string) *Bridge {
	return &Bridge{Interp: m.Interp, Origin: m.Origin, Haystack: haystack, Needle: e.Key, Source: e.Source()}
}

// execError turns a failed search into a script error. An abort caused by
// a failing callout surfaces the callout's own error.
func execError(b *Bridge, needle string, err error) error {
	if b.Err() != nil {
		return b.Err()
	}
	return errors.New(errors.RegexError, err.Error()).WithWhat("RegEx").WithExtra(needle).WithCause(err)
}

// Match finds the first match of needle in haystack at or after startPos.
// It returns the 1-based position of the match and its snapshot, or 0 and
// nil when there is none.
func (m *Matcher) Match(haystack, needle string, startPos int) (int, *Match, error) {
	e, err := m.Cache.Get(needle)
	if err != nil {
		return 0, nil, err
	}
	subject := []rune(haystack)
	b := m.bridge(e, haystack)
	names := e.Pattern.Names()
	ov, mark, err := e.Pattern.Exec(subject, StartOffset(startPos, len(subject)), 0, b.Func(subject, names))
	if err != nil {
		return 0, nil, execError(b, needle, err)
	}
	if b.Err() != nil {
		return 0, nil, b.Err()
	}
	if ov == nil {
		return 0, nil, nil
	}
	match := NewMatch(subject, ov, names, mark)
	return match.Pos(0), match, nil
}

// Replace substitutes repl for the matches of needle in haystack at or
// after startPos, at most limit times (negative for all of them). It
// returns the new string and the number of replacements.
func (m *Matcher) Replace(haystack, needle, repl string, limit, startPos int) (string, int, error) {
	e, err := m.Cache.Get(needle)
	if err != nil {
		return "", 0, err
	}
	subject := []rune(haystack)
	b := m.bridge(e, haystack)
	names := e.Pattern.Names()
	callout := b.Func(subject, names)
	search := func(start int, flags ExecFlags) ([]int, error) {
		ov, _, err := e.Pattern.Exec(subject, start, flags, callout)
		if err != nil {
			return nil, execError(b, needle, err)
		}
		if b.Err() != nil {
			return nil, b.Err()
		}
		return ov, nil
	}
	return replaceAll(subject, names, e.Options.CRLFIsNewline(), repl, limit, StartOffset(startPos, len(subject)), search)
}
