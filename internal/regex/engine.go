package regex

import (
	"fmt"
)

// ExecFlags modify a single search
type ExecFlags uint8

const (
	// Anchored restricts the search to a match starting exactly at start
	Anchored ExecFlags = 1 << iota
	// NotEmptyAtStart rejects an empty match at start
	NotEmptyAtStart
)

// CalloutBlock is the state handed to a callout: the match as far as it
// has got when the callout point was reached.
type CalloutBlock struct {
	Number          int   // n of (?Cn)
	Ovector         []int // pairs of rune offsets, -1 for groups not set yet
	CaptureTop      int   // one more than the highest group set so far
	StartMatch      int   // rune offset where the current attempt started
	CurrentPosition int   // rune offset reached in the subject
	PatternPosition int   // byte offset in the pattern just past the callout item
	Mark            string
}

// CalloutFunc is invoked at each callout point. 0 continues the match, a
// positive value fails the current path, a negative value aborts the match.
type CalloutFunc func(cb *CalloutBlock) int

// CalloutAbort is returned by Exec when a callout aborted the match
type CalloutAbort struct {
	Code int
}

func (e *CalloutAbort) Error() string {
	return fmt.Sprintf("match aborted by callout (%d)", e.Code)
}

// CompileError describes a pattern the engine rejected
type CompileError struct {
	Code    string
	Offset  int // byte offset into the pattern, -1 if unknown
	Message string
}

func (e *CompileError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("Compile error %s at offset %d: %s", e.Code, e.Offset, e.Message)
	}
	return fmt.Sprintf("Compile error %s: %s", e.Code, e.Message)
}

// Pattern is a compiled regular expression
type Pattern interface {
	// Exec searches subject from rune offset start. It returns the offsets of
	// every group as pairs (nil when there is no match) and the last
	// (*MARK) name passed.
	Exec(subject []rune, start int, flags ExecFlags, callout CalloutFunc) ([]int, string, error)
	// Names maps group numbers to names; unnamed groups are ""
	Names() []string
}

// Extra is the optional result of studying a pattern
type Extra interface{}

// Engine compiles and frees patterns
type Engine interface {
	Compile(pattern string, opts Options) (Pattern, error)
	Study(p Pattern) (Extra, error)
	Release(p Pattern, x Extra)
}

// NewDefaultEngine returns the PCRE2 engine for library, or the regexp2
// engine together with the reason PCRE2 could not be loaded.
func NewDefaultEngine(library string) (Engine, error) {
	e, err := NewPCRE2Engine(library)
	if err != nil {
		return NewRegexp2Engine(), err
	}
	return e, nil
}
