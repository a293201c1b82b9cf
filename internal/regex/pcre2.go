//go:build (linux || darwin || freebsd || windows) && (amd64 || arm64)

package regex

import (
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"unicode/utf8"
	"unsafe"

	"github.com/ebitengine/purego"

	"hotscript/internal/native"
)

const (
	pcre2Anchored        = 0x80000000
	pcre2NoUTFCheck      = 0x40000000
	pcre2AutoCallout     = 0x00000004
	pcre2Caseless        = 0x00000008
	pcre2DollarEndOnly   = 0x00000010
	pcre2DotAll          = 0x00000020
	pcre2DupNames        = 0x00000040
	pcre2Extended        = 0x00000080
	pcre2Multiline       = 0x00000400
	pcre2Ungreedy        = 0x00040000
	pcre2UTF             = 0x00080000
	pcre2NotEmptyAtStart = 0x00000008
	pcre2JITComplete     = 0x00000001

	pcre2NewlineCR      = 1
	pcre2NewlineLF      = 2
	pcre2NewlineCRLF    = 3
	pcre2NewlineAny     = 4
	pcre2NewlineAnyCRLF = 5

	pcre2ErrorNoMatch = -1

	pcre2InfoCaptureCount  = 4
	pcre2InfoNameCount     = 17
	pcre2InfoNameEntrySize = 18
	pcre2InfoNameTable     = 19

	pcre2Unset = ^uintptr(0)
)

// byte offsets into pcre2_callout_block on 64-bit targets
const (
	cbNumber          = 4
	cbCaptureTop      = 8
	cbOffsetVector    = 16
	cbMark            = 24
	cbStartMatch      = 48
	cbCurrentPosition = 56
	cbPatternPosition = 64
)

// pcre2Lib holds the entry points of one loaded libpcre2-8
type pcre2Lib struct {
	compile            func(pattern unsafe.Pointer, length uintptr, options uint32, errcode unsafe.Pointer, erroffset unsafe.Pointer, ccontext uintptr) uintptr
	codeFree           func(code uintptr)
	errorMessage       func(code int32, buf unsafe.Pointer, length uintptr) int32
	patternInfo        func(code uintptr, what uint32, where unsafe.Pointer) int32
	jitCompile         func(code uintptr, options uint32) int32
	compileContextNew  func(gcontext uintptr) uintptr
	compileContextFree func(ccontext uintptr)
	setNewline         func(ccontext uintptr, newline uint32) int32
	matchContextNew    func(gcontext uintptr) uintptr
	matchContextFree   func(mcontext uintptr)
	setCallout         func(mcontext uintptr, fn uintptr, data uintptr) int32
	matchDataFromCode  func(code uintptr, gcontext uintptr) uintptr
	matchDataFree      func(mdata uintptr)
	match              func(code uintptr, subject unsafe.Pointer, length uintptr, start uintptr, options uint32, mdata uintptr, mcontext uintptr) int32
	ovectorPointer     func(mdata uintptr) uintptr
	ovectorCount       func(mdata uintptr) uint32
	getMark            func(mdata uintptr) uintptr
}

func pcre2Candidates() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"libpcre2-8.0.dylib", "/opt/homebrew/lib/libpcre2-8.0.dylib", "/usr/local/lib/libpcre2-8.0.dylib"}
	case "windows":
		return []string{"pcre2-8.dll", "libpcre2-8-0.dll"}
	default:
		return []string{"libpcre2-8.so.0", "libpcre2-8.so"}
	}
}

var pcre2Loaded struct {
	mu   sync.Mutex
	libs map[string]*pcre2Lib
}

// loadPCRE2 opens the named library, or the first of the usual names that
// loads when name is empty. Each library is bound once per process.
func loadPCRE2(name string) (*pcre2Lib, error) {
	pcre2Loaded.mu.Lock()
	defer pcre2Loaded.mu.Unlock()
	if lib, ok := pcre2Loaded.libs[name]; ok {
		return lib, nil
	}

	candidates := []string{name}
	if name == "" {
		candidates = pcre2Candidates()
	}
	loader := native.DefaultLoader()
	var lastErr error
	for _, c := range candidates {
		h, err := loader.LoadLibrary(c)
		if err != nil {
			lastErr = err
			continue
		}
		lib, err := bindPCRE2(loader, h)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", c, err)
			continue
		}
		if pcre2Loaded.libs == nil {
			pcre2Loaded.libs = make(map[string]*pcre2Lib)
		}
		pcre2Loaded.libs[name] = lib
		return lib, nil
	}
	return nil, fmt.Errorf("pcre2 not available: %w", lastErr)
}

func bindPCRE2(loader native.Loader, h uintptr) (*pcre2Lib, error) {
	lib := &pcre2Lib{}
	for _, sym := range []struct {
		name string
		fptr any
	}{
		{"pcre2_compile_8", &lib.compile},
		{"pcre2_code_free_8", &lib.codeFree},
		{"pcre2_get_error_message_8", &lib.errorMessage},
		{"pcre2_pattern_info_8", &lib.patternInfo},
		{"pcre2_jit_compile_8", &lib.jitCompile},
		{"pcre2_compile_context_create_8", &lib.compileContextNew},
		{"pcre2_compile_context_free_8", &lib.compileContextFree},
		{"pcre2_set_newline_8", &lib.setNewline},
		{"pcre2_match_context_create_8", &lib.matchContextNew},
		{"pcre2_match_context_free_8", &lib.matchContextFree},
		{"pcre2_set_callout_8", &lib.setCallout},
		{"pcre2_match_data_create_from_pattern_8", &lib.matchDataFromCode},
		{"pcre2_match_data_free_8", &lib.matchDataFree},
		{"pcre2_match_8", &lib.match},
		{"pcre2_get_ovector_pointer_8", &lib.ovectorPointer},
		{"pcre2_get_ovector_count_8", &lib.ovectorCount},
		{"pcre2_get_mark_8", &lib.getMark},
	} {
		addr, ok := loader.GetProcAddress(h, sym.name)
		if !ok {
			return nil, fmt.Errorf("missing symbol %s", sym.name)
		}
		purego.RegisterFunc(sym.fptr, addr)
	}
	return lib, nil
}

func (l *pcre2Lib) message(code int32) string {
	buf := make([]byte, 256)
	n := l.errorMessage(code, unsafe.Pointer(&buf[0]), uintptr(len(buf)))
	if n < 0 {
		return "error " + strconv.Itoa(int(code))
	}
	return string(buf[:n])
}

// PCRE2Engine compiles patterns with the system's libpcre2-8, loaded at
// run time. It supports the full option set, callouts and (*VERB)s.
type PCRE2Engine struct {
	lib *pcre2Lib
}

// NewPCRE2Engine loads library, or searches the usual names when it is
// empty.
func NewPCRE2Engine(library string) (*PCRE2Engine, error) {
	lib, err := loadPCRE2(library)
	if err != nil {
		return nil, err
	}
	return &PCRE2Engine{lib: lib}, nil
}

// calloutShift records that the rewritten pattern lost delta bytes ending
// at byte at.
type calloutShift struct {
	at, delta int
}

// rewriteCallouts turns "(?Cn:Name)" into "(?Cn)". The library only knows
// numbered and quoted-string callouts; the name is looked up again from the
// pattern text when the callout fires.
func rewriteCallouts(pattern string) (string, []calloutShift) {
	var (
		out    []byte
		shifts []calloutShift
	)
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c == '\\' && i+1 < len(pattern) {
			out = append(out, c, pattern[i+1])
			i++
			continue
		}
		if c != '(' || i+3 > len(pattern) || pattern[i+1:i+3] != "?C" {
			out = append(out, c)
			continue
		}
		j := i + 3
		for j < len(pattern) && pattern[j] >= '0' && pattern[j] <= '9' {
			j++
		}
		if j >= len(pattern) || pattern[j] != ':' {
			out = append(out, c)
			continue
		}
		end := j
		for end < len(pattern) && pattern[end] != ')' {
			end++
		}
		if end == len(pattern) {
			out = append(out, c)
			continue
		}
		out = append(out, pattern[i:j]...)
		out = append(out, ')')
		shifts = append(shifts, calloutShift{at: len(out), delta: end - j})
		i = end
	}
	if shifts == nil {
		return pattern, nil
	}
	return string(out), shifts
}

// originalOffset maps a byte offset in the rewritten pattern back to the
// pattern the script wrote
func originalOffset(shifts []calloutShift, pos int) int {
	orig := pos
	for _, s := range shifts {
		if s.at <= pos {
			orig += s.delta
		}
	}
	return orig
}

type pcre2Pattern struct {
	lib    *pcre2Lib
	shifts []calloutShift
	names  []string

	mu   sync.RWMutex
	code uintptr
}

func (e *PCRE2Engine) Compile(pattern string, o Options) (Pattern, error) {
	flags := uint32(pcre2UTF)
	for _, f := range []struct {
		on   bool
		flag uint32
	}{
		{o.IgnoreCase, pcre2Caseless}, {o.Multiline, pcre2Multiline}, {o.DotAll, pcre2DotAll},
		{o.Extended, pcre2Extended}, {o.Anchored, pcre2Anchored}, {o.DollarEndOnly, pcre2DollarEndOnly},
		{o.DupNames, pcre2DupNames}, {o.Ungreedy, pcre2Ungreedy}, {o.AutoCallout, pcre2AutoCallout},
	} {
		if f.on {
			flags |= f.flag
		}
	}

	ccontext := e.lib.compileContextNew(0)
	if ccontext == 0 {
		return nil, fmt.Errorf("pcre2: cannot allocate compile context")
	}
	defer e.lib.compileContextFree(ccontext)
	e.lib.setNewline(ccontext, pcre2NewlineValue(o.Newline))

	src, shifts := rewriteCallouts(pattern)
	buf := append([]byte(src), 0)
	var (
		errcode   int32
		erroffset uintptr
	)
	code := e.lib.compile(unsafe.Pointer(&buf[0]), uintptr(len(src)), flags, unsafe.Pointer(&errcode), unsafe.Pointer(&erroffset), ccontext)
	if code == 0 {
		return nil, &CompileError{
			Code:    strconv.Itoa(int(errcode)),
			Offset:  originalOffset(shifts, int(erroffset)),
			Message: e.lib.message(errcode),
		}
	}

	p := &pcre2Pattern{lib: e.lib, shifts: shifts, code: code}
	p.names = p.readNames()
	return p, nil
}

func pcre2NewlineValue(n Newline) uint32 {
	switch n {
	case NewlineCR:
		return pcre2NewlineCR
	case NewlineCRLF:
		return pcre2NewlineCRLF
	case NewlineAnyCRLF:
		return pcre2NewlineAnyCRLF
	case NewlineAny:
		return pcre2NewlineAny
	}
	return pcre2NewlineLF
}

func (p *pcre2Pattern) info(what uint32) uint32 {
	var v uint32
	p.lib.patternInfo(p.code, what, unsafe.Pointer(&v))
	return v
}

// readNames decodes the name table: each entry is a big-endian group number
// followed by the NUL-terminated name.
func (p *pcre2Pattern) readNames() []string {
	names := make([]string, p.info(pcre2InfoCaptureCount)+1)
	count, size := p.info(pcre2InfoNameCount), p.info(pcre2InfoNameEntrySize)
	if count == 0 {
		return names
	}
	var table uintptr
	p.lib.patternInfo(p.code, pcre2InfoNameTable, unsafe.Pointer(&table))
	raw := native.Bytes(table, int(count*size))
	for i := 0; i < int(count); i++ {
		entry := raw[i*int(size) : (i+1)*int(size)]
		group := int(entry[0])<<8 | int(entry[1])
		name := entry[2:]
		for k, b := range name {
			if b == 0 {
				name = name[:k]
				break
			}
		}
		if group < len(names) && names[group] == "" {
			names[group] = string(name)
		}
	}
	return names
}

func (p *pcre2Pattern) Names() []string { return p.names }

// pcre2Run is the state of one search, reachable from the callout
// trampoline through its ID
type pcre2Run struct {
	pattern  *pcre2Pattern
	callout  CalloutFunc
	byteAt   []int // rune offset to byte offset, len(subject)+1 entries
	groups   int
	aborted  bool
	code     int
	panicked any
}

func (r *pcre2Run) runeAt(b uintptr) int {
	if b == pcre2Unset {
		return -1
	}
	return sort.SearchInts(r.byteAt, int(b))
}

var (
	pcre2Runs    sync.Map
	pcre2NextRun atomic.Uintptr

	// one trampoline serves every search; purego never frees callbacks
	pcre2Trampoline = sync.OnceValue(func() uintptr {
		return purego.NewCallback(pcre2Callout)
	})
)

func pcre2Callout(block, data uintptr) uintptr {
	v, ok := pcre2Runs.Load(data)
	if !ok {
		return 0
	}
	r := v.(*pcre2Run)
	rc := r.dispatch(block)
	if rc < 0 {
		r.aborted, r.code = true, rc
	}
	return uintptr(int64(rc))
}

func (r *pcre2Run) dispatch(block uintptr) (rc int) {
	defer func() {
		if p := recover(); p != nil {
			r.panicked = p
			rc = calloutAbortCode
		}
	}()

	top := int(native.Peek(block+cbCaptureTop, 4))
	vec := uintptr(native.Peek(block+cbOffsetVector, 8))
	ov := make([]int, 2*r.groups)
	for i := range ov {
		ov[i] = -1
	}
	for i := 0; i < 2*top && i < len(ov); i++ {
		ov[i] = r.runeAt(uintptr(native.Peek(vec+uintptr(i)*8, 8)))
	}
	cb := &CalloutBlock{
		Number:          int(native.Peek(block+cbNumber, 4)),
		Ovector:         ov,
		CaptureTop:      top,
		StartMatch:      r.runeAt(uintptr(native.Peek(block+cbStartMatch, 8))),
		CurrentPosition: r.runeAt(uintptr(native.Peek(block+cbCurrentPosition, 8))),
		PatternPosition: originalOffset(r.pattern.shifts, int(native.Peek(block+cbPatternPosition, 8))),
	}
	if mark := uintptr(native.Peek(block+cbMark, 8)); mark != 0 {
		cb.Mark = string(native.ReadCString(mark))
	}
	return r.callout(cb)
}

func (p *pcre2Pattern) Exec(subject []rune, start int, flags ExecFlags, callout CalloutFunc) ([]int, string, error) {
	if start < 0 || start > len(subject) {
		return nil, "", nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.code == 0 {
		return nil, "", fmt.Errorf("pcre2: pattern already released")
	}
	lib := p.lib

	buf := make([]byte, 0, len(subject)+1)
	byteAt := make([]int, len(subject)+1)
	for i, r := range subject {
		byteAt[i] = len(buf)
		buf = utf8.AppendRune(buf, r)
	}
	byteAt[len(subject)] = len(buf)
	n := len(buf)
	buf = append(buf, 0)

	opts := uint32(pcre2NoUTFCheck)
	if flags&Anchored != 0 {
		opts |= pcre2Anchored
	}
	if flags&NotEmptyAtStart != 0 {
		opts |= pcre2NotEmptyAtStart
	}

	mdata := lib.matchDataFromCode(p.code, 0)
	if mdata == 0 {
		return nil, "", fmt.Errorf("pcre2: cannot allocate match data")
	}
	defer lib.matchDataFree(mdata)

	run := &pcre2Run{pattern: p, callout: callout, byteAt: byteAt, groups: len(p.names)}
	var mcontext uintptr
	if callout != nil {
		mcontext = lib.matchContextNew(0)
		if mcontext == 0 {
			return nil, "", fmt.Errorf("pcre2: cannot allocate match context")
		}
		defer lib.matchContextFree(mcontext)
		id := pcre2NextRun.Add(1)
		pcre2Runs.Store(id, run)
		defer pcre2Runs.Delete(id)
		lib.setCallout(mcontext, pcre2Trampoline(), id)
	}

	rc := lib.match(p.code, unsafe.Pointer(&buf[0]), uintptr(n), uintptr(byteAt[start]), opts, mdata, mcontext)
	runtime.KeepAlive(buf)

	mark := ""
	if m := lib.getMark(mdata); m != 0 {
		mark = string(native.ReadCString(m))
	}
	switch {
	case run.panicked != nil:
		panic(run.panicked)
	case run.aborted:
		return nil, mark, &CalloutAbort{Code: run.code}
	case rc == pcre2ErrorNoMatch:
		return nil, mark, nil
	case rc < 0:
		return nil, mark, fmt.Errorf("pcre2 match error %d: %s", rc, lib.message(rc))
	}

	ov := make([]int, 2*len(p.names))
	vec := lib.ovectorPointer(mdata)
	pairs := int(lib.ovectorCount(mdata))
	for i := range ov {
		ov[i] = -1
		if i/2 < pairs {
			ov[i] = run.runeAt(uintptr(native.Peek(vec+uintptr(i)*8, 8)))
		}
	}
	return ov, mark, nil
}

// Study JIT-compiles the pattern
func (e *PCRE2Engine) Study(p Pattern) (Extra, error) {
	pp, ok := p.(*pcre2Pattern)
	if !ok {
		return nil, fmt.Errorf("pcre2: foreign pattern %T", p)
	}
	pp.mu.Lock()
	defer pp.mu.Unlock()
	if rc := e.lib.jitCompile(pp.code, pcre2JITComplete); rc < 0 {
		return nil, fmt.Errorf("pcre2 jit: %s", e.lib.message(rc))
	}
	return "jit", nil
}

// Release frees the compiled code. The JIT data goes with it.
func (e *PCRE2Engine) Release(p Pattern, _ Extra) {
	pp, ok := p.(*pcre2Pattern)
	if !ok {
		return
	}
	pp.mu.Lock()
	defer pp.mu.Unlock()
	if pp.code != 0 {
		e.lib.codeFree(pp.code)
		pp.code = 0
	}
}
