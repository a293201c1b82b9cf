// Package repl is an interactive shell over the native-interop builtins.
// Each line is a builtin call, an assignment or a shell command:
//
//	>>> RegExMatch("xyz123", "\d+", m)
//	4
//	>>> DllCall("kernel32\GetTickCount", "UInt")
//	>>> :def Second(a, b) => b
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"hotscript/internal/execmem"
	"hotscript/internal/stdlib"
	"hotscript/internal/trace"
	"hotscript/internal/vm"
)

const prompt = ">>> "

// errQuit ends the session
var errQuit = errors.New("quit")

// Shell evaluates lines against an interpreter
type Shell struct {
	Interp  *vm.Interp
	Runtime *stdlib.Runtime
	Tracer  *trace.Recorder
	Out     io.Writer
}

// New returns a shell writing to out
func New(in *vm.Interp, rt *stdlib.Runtime, tracer *trace.Recorder, out io.Writer) *Shell {
	return &Shell{Interp: in, Runtime: rt, Tracer: tracer, Out: out}
}

// Run reads lines from r until EOF, "exit" or ctx is done. A terminal gets
// line editing and history.
func (s *Shell) Run(ctx context.Context, r io.Reader) error {
	if f, ok := r.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return s.runTerminal(ctx)
	}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		if err := s.Exec(sc.Text()); err == errQuit {
			return nil
		}
	}
	return sc.Err()
}

func (s *Shell) runTerminal(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          s.Out,
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()
	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	fmt.Fprintln(s.Out, "hotscript shell | :help for commands, exit to quit")
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			return nil
		}
		if err := s.Exec(line); err == errQuit {
			return nil
		}
	}
}

// Exec runs one line and prints its result or error
func (s *Shell) Exec(line string) error {
	line = strings.TrimSpace(line)
	switch {
	case line == "" || strings.HasPrefix(line, ";"):
		return nil
	case line == "exit" || line == ":quit":
		return errQuit
	case strings.HasPrefix(line, ":"):
		if err := s.command(line[1:]); err != nil {
			fmt.Fprintf(s.Out, "error: %v\n", err)
			return err
		}
		return nil
	}

	st, err := parseStatement(line)
	if err != nil {
		fmt.Fprintf(s.Out, "syntax error: %v\n", err)
		return err
	}
	v, err := s.eval(st.value, nil)
	if err != nil {
		fmt.Fprintln(s.Out, err)
		return err
	}
	if st.assign != "" {
		s.Interp.Global(st.assign).Set(vm.Deref(v))
		return nil
	}
	s.print(v)
	return nil
}

// eval evaluates e. Inside a :def function, scope resolves its parameters.
func (s *Shell) eval(e expr, scope *vm.Activation) (vm.Value, error) {
	switch e := e.(type) {
	case literal:
		return e.v, nil
	case variable:
		if scope != nil {
			if v := scope.Local(e.name); v != nil {
				return v, nil
			}
		}
		return s.Interp.Global(e.name), nil
	case call:
		args := make([]vm.Value, len(e.args))
		for i, a := range e.args {
			v, err := s.eval(a, scope)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		if _, ok := s.Interp.Builtin(e.name); ok {
			return s.Interp.CallBuiltin(e.name, args...)
		}
		if f, ok := s.Interp.FindFunc(e.name); ok {
			return s.Interp.Call(f, args)
		}
		return nil, fmt.Errorf("unknown function %s", e.name)
	}
	return nil, fmt.Errorf("cannot evaluate %T", e)
}

func (s *Shell) print(v vm.Value) {
	switch v := vm.Deref(v).(type) {
	case nil:
	case *vm.Object:
		keys := make([]string, 0, len(v.Items))
		for k := range v.Items {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			val, _ := v.Get(k)
			fmt.Fprintf(s.Out, "  %s = %s\n", k, vm.ToString(val))
		}
	default:
		fmt.Fprintln(s.Out, vm.ToString(v))
	}
}

func (s *Shell) command(line string) error {
	name, rest, _ := strings.Cut(line, " ")
	switch strings.ToLower(name) {
	case "help":
		s.help()
	case "stats":
		s.stats()
	case "callbacks":
		s.callbacks()
	case "builtins":
		names := s.Interp.Builtins()
		sort.Strings(names)
		fmt.Fprintln(s.Out, strings.Join(names, " "))
	case "def":
		return s.define(rest)
	default:
		return fmt.Errorf("unknown command :%s", name)
	}
	return nil
}

func (s *Shell) help() {
	fmt.Fprint(s.Out, `  Name(args...)          call a builtin or :def function
  var := expr            assign a global variable
  var                    print a variable
  :def F(a, b*) => expr  define a function (b* collects surplus arguments)
  :builtins              list builtin functions
  :callbacks             list registered callbacks
  :stats                 show cache, memory and trace statistics
  exit                   leave the shell
`)
}

// define handles ":def Name(params) => expr"
func (s *Shell) define(src string) error {
	head, body, ok := strings.Cut(src, "=>")
	if !ok {
		return fmt.Errorf("expected Name(params) => expr")
	}
	head = strings.TrimSpace(head)
	open := strings.IndexByte(head, '(')
	if open <= 0 || !strings.HasSuffix(head, ")") {
		return fmt.Errorf("expected Name(params)")
	}
	f := &vm.Func{Name: strings.TrimSpace(head[:open])}
	for _, p := range strings.Split(head[open+1:len(head)-1], ",") {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
		case strings.HasSuffix(p, "*"):
			f.Variadic = true
		default:
			param := vm.Param{Name: p}
			if n, def, ok := strings.Cut(p, ":="); ok {
				v, valid := vm.ParseNumber(strings.Trim(strings.TrimSpace(def), `"`))
				if !valid {
					v = strings.Trim(strings.TrimSpace(def), `"`)
				}
				param = vm.Param{Name: strings.TrimSpace(n), Default: v, HasDefault: true}
			}
			f.Params = append(f.Params, param)
		}
	}
	st, err := parseStatement(strings.TrimSpace(body))
	if err != nil {
		return err
	}
	f.Body = func(_ *vm.Thread, a *vm.Activation) (vm.Value, error) {
		return s.eval(st.value, a)
	}
	s.Interp.DefineFunc(f)
	return nil
}

func (s *Shell) stats() {
	if s.Runtime != nil && s.Runtime.Regex != nil {
		c := s.Runtime.Regex.Cache
		st := c.Stats()
		fmt.Fprintf(s.Out, "regex cache   %d/%d entries, %s hits, %s misses, %s compiles, %s evictions\n",
			c.Len(), c.Capacity(), humanize.Comma(st.Hits), humanize.Comma(st.Misses),
			humanize.Comma(st.Compiles), humanize.Comma(st.Evictions))
	}
	mem := execmem.Usage()
	fmt.Fprintf(s.Out, "exec memory   %d blocks, %s code, %s data\n",
		mem.Blocks, humanize.IBytes(uint64(mem.CodeBytes)), humanize.IBytes(uint64(mem.DataBytes)))
	if s.Runtime != nil && s.Runtime.Callbacks != nil {
		fmt.Fprintf(s.Out, "callbacks     %d\n", len(s.Runtime.Callbacks.List()))
	}
	fmt.Fprintf(s.Out, "threads       %d running, %d paused, last error %d\n",
		s.Interp.ThreadCount(), s.Interp.PausedCount(), s.Interp.LastError())
	if s.Tracer.Enabled() {
		emitted, failed := s.Tracer.Counts()
		fmt.Fprintf(s.Out, "trace         %s events, %s failed writes (session %s)\n",
			humanize.Comma(emitted), humanize.Comma(failed), s.Tracer.Session)
	}
}

func (s *Shell) callbacks() {
	if s.Runtime == nil || s.Runtime.Callbacks == nil {
		return
	}
	for _, cb := range s.Runtime.Callbacks.List() {
		fmt.Fprintf(s.Out, "  0x%X  %s  params=%d options=%q event=0x%X\n",
			cb.Addr, cb.Func.Name, cb.ParamCount, cb.Options.String(), cb.EventInfo)
	}
}
