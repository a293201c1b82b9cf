package regex

import (
	"strings"

	"hotscript/internal/errors"
	"hotscript/internal/vm"
)

// CalloutVar is the global consulted when a callout names no function
const CalloutVar = "pcre_callout"

// Origin identifies the thread a match runs on
type Origin uint8

const (
	// OriginMain is the interpreter thread; callouts run script code
	OriginMain Origin = iota
	// OriginHook is the input hook thread; callouts continue silently
	OriginHook
)

// calloutAbortCode is returned to the engine when the bridge itself fails
const calloutAbortCode = -1

// Bridge routes callouts of one search to script functions
type Bridge struct {
	Interp   *vm.Interp
	Origin   Origin
	Haystack string
	Needle   string // the raw pattern string, option prefix included
	Source   string // the pattern without prefix, as compiled

	subject []rune
	names   []string
	err     error
}

// Err returns the error that aborted the match, if any
func (b *Bridge) Err() error { return b.err }

// Func returns the CalloutFunc to hand to Pattern.Exec
func (b *Bridge) Func(subject []rune, names []string) CalloutFunc {
	b.subject, b.names = subject, names
	return b.call
}

func (b *Bridge) call(cb *CalloutBlock) int {
	if b.Origin != OriginMain || b.Interp == nil {
		return 0
	}
	f, err := b.target(cb.PatternPosition)
	if err != nil {
		b.err = err
		return calloutAbortCode
	}

	ov := make([]int, len(cb.Ovector))
	copy(ov, cb.Ovector)
	for i := 2 * cb.CaptureTop; i < len(ov); i++ {
		ov[i] = -1
	}
	// the overall match is still in progress: it spans from where the
	// attempt started to the current position
	if len(ov) >= 2 {
		ov[0], ov[1] = cb.StartMatch, cb.CurrentPosition
	}
	m := NewMatch(b.subject, ov, b.names, cb.Mark)

	args := []vm.Value{m.Object(), int64(cb.Number), int64(cb.StartMatch + 1), b.Haystack, b.Needle}
	if !f.Variadic && len(args) > f.MaxParams() {
		args = args[:f.MaxParams()]
	}
	ret, err := b.Interp.Call(f, args)
	if err != nil {
		b.err = err
		return calloutAbortCode
	}
	return int(vm.ToInt64(ret))
}

// target finds the function for the callout ending just before pos: the
// name after ':' in "(?Cn:Func)", else the function held by CalloutVar.
func (b *Bridge) target(pos int) (*vm.Func, error) {
	src := b.Source
	if pos > len(src) {
		pos = len(src)
	}
	if i := strings.LastIndex(src[:pos], "(?C"); i >= 0 {
		item := src[i+3:]
		if end := strings.IndexByte(item, ')'); end >= 0 {
			item = item[:end]
		}
		if colon := strings.IndexByte(item, ':'); colon >= 0 {
			name := item[colon+1:]
			if f, ok := b.Interp.ResolveFunc(name); ok {
				return f, nil
			}
			return nil, errors.NewTargetError("Call to nonexistent function.", name).WithExtra(b.Needle)
		}
	}
	if v, ok := b.Interp.LookupGlobal(CalloutVar); ok {
		if f, ok := b.Interp.ResolveFunc(v.Value); ok {
			return f, nil
		}
	}
	return nil, errors.NewTargetError("Call to nonexistent function.", CalloutVar).WithExtra(b.Needle)
}
