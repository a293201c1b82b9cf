package regex

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/dlclark/regexp2/syntax"
)

// Regexp2Engine adapts github.com/dlclark/regexp2, a backtracking engine
// with Perl-style syntax. It is the fallback when libpcre2-8 cannot be
// loaded. It has no callouts, no (*VERB)s and no ungreedy or
// dollar-end-only modes; patterns needing those fail to compile.
type Regexp2Engine struct {
	Timeout time.Duration // per-search limit, 0 for none
}

// NewRegexp2Engine returns the fallback engine
func NewRegexp2Engine() *Regexp2Engine {
	return &Regexp2Engine{}
}

type r2Pattern struct {
	source string
	opts   regexp2.RegexOptions
	ext    bool
	re     *regexp2.Regexp
	names  []string

	once         sync.Once
	anchored     *regexp2.Regexp
	nonEmptyAnch *regexp2.Regexp
	variantErr   error
}

func unsupported(code, msg string) *CompileError {
	return &CompileError{Code: code, Offset: -1, Message: msg}
}

func (e *Regexp2Engine) Compile(pattern string, o Options) (Pattern, error) {
	switch {
	case o.Ungreedy:
		return nil, unsupported("U", "ungreedy mode is not supported by this engine")
	case o.DollarEndOnly:
		return nil, unsupported("D", "dollar-end-only mode is not supported by this engine")
	case o.AutoCallout:
		return nil, unsupported("C", "auto-callout is not supported by this engine")
	}
	if i := strings.Index(pattern, "(?C"); i >= 0 {
		return nil, &CompileError{Code: "C", Offset: i, Message: "callouts are not supported by this engine"}
	}

	var ro regexp2.RegexOptions
	if o.IgnoreCase {
		ro |= regexp2.IgnoreCase
	}
	if o.Multiline {
		ro |= regexp2.Multiline
	}
	if o.DotAll {
		ro |= regexp2.Singleline
	}
	if o.Extended {
		ro |= regexp2.IgnorePatternWhitespace
	}
	p := &r2Pattern{source: pattern, opts: ro, ext: o.Extended}
	src := pattern
	if o.Anchored {
		src = p.wrap(`\G(?:`, ")")
	}
	re, err := e.compile(src, ro)
	if err != nil {
		return nil, err
	}
	p.re = re
	p.names = groupNames(re)
	return p, nil
}

func (e *Regexp2Engine) compile(src string, ro regexp2.RegexOptions) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(src, ro)
	if err != nil {
		var se *syntax.Error
		if errors.As(err, &se) {
			return nil, &CompileError{Code: string(se.Code), Offset: -1, Message: fmt.Sprintf("%s in %q", se.Code, se.Expr)}
		}
		return nil, &CompileError{Code: "?", Offset: -1, Message: err.Error()}
	}
	if e.Timeout > 0 {
		re.MatchTimeout = e.Timeout
	}
	return re, nil
}

// wrap encloses the pattern in a group. In extended mode a trailing
// comment would swallow the closing parenthesis, so it goes on a new line.
func (p *r2Pattern) wrap(open, close string) string {
	if p.ext {
		return open + p.source + "\n" + close
	}
	return open + p.source + close
}

func groupNames(re *regexp2.Regexp) []string {
	nums := re.GetGroupNumbers()
	max := 0
	for _, n := range nums {
		if n > max {
			max = n
		}
	}
	names := make([]string, max+1)
	for _, n := range nums {
		if name := re.GroupNameFromNumber(n); name != strconv.Itoa(n) {
			names[n] = name
		}
	}
	return names
}

func (p *r2Pattern) Names() []string { return p.names }

func (p *r2Pattern) variant(flags ExecFlags) (*regexp2.Regexp, error) {
	if flags == 0 {
		return p.re, nil
	}
	p.once.Do(func() {
		eng := &Regexp2Engine{Timeout: p.re.MatchTimeout}
		if p.anchored, p.variantErr = eng.compile(p.wrap(`\G(?:`, ")"), p.opts); p.variantErr != nil {
			return
		}
		p.nonEmptyAnch, p.variantErr = eng.compile(p.wrap(`\G(?:`, `)(?!\G)`), p.opts)
	})
	if p.variantErr != nil {
		return nil, p.variantErr
	}
	if flags&NotEmptyAtStart != 0 {
		return p.nonEmptyAnch, nil
	}
	return p.anchored, nil
}

func (p *r2Pattern) Exec(subject []rune, start int, flags ExecFlags, _ CalloutFunc) ([]int, string, error) {
	if flags&NotEmptyAtStart != 0 && flags&Anchored == 0 {
		return nil, "", fmt.Errorf("not-empty-at-start requires an anchored search")
	}
	if start < 0 || start > len(subject) {
		return nil, "", nil
	}
	re, err := p.variant(flags)
	if err != nil {
		return nil, "", err
	}
	m, err := re.FindRunesMatchStartingAt(subject, start)
	if err != nil {
		return nil, "", err
	}
	if m == nil {
		return nil, "", nil
	}
	ov := make([]int, 2*len(p.names))
	for i := range ov {
		ov[i] = -1
	}
	for _, g := range m.Groups() {
		n, ok := p.groupNumber(g.Name)
		if !ok || len(g.Captures) == 0 {
			continue
		}
		ov[2*n] = g.Index
		ov[2*n+1] = g.Index + g.Length
	}
	return ov, "", nil
}

func (p *r2Pattern) groupNumber(name string) (int, bool) {
	if n, err := strconv.Atoi(name); err == nil && n < len(p.names) {
		return n, true
	}
	for i, nm := range p.names {
		if nm != "" && nm == name {
			return i, true
		}
	}
	return 0, false
}

// Study is a no-op for this engine
func (e *Regexp2Engine) Study(Pattern) (Extra, error) {
	return nil, nil
}

// Release is a no-op: compiled programs are garbage collected once the
// cache drops them
func (e *Regexp2Engine) Release(Pattern, Extra) {}
