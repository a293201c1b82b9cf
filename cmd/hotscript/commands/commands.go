package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"hotscript/internal/dll"
	"hotscript/internal/repl"
	"hotscript/internal/vm"
)

const defaultMonitorAddr = "127.0.0.1:8765"

// ReplCommand starts the interactive shell
func ReplCommand(env *Env, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return repl.New(env.Interp, env.Runtime, env.Tracer, env.Out).Run(ctx, os.Stdin)
}

// callArgs converts command-line words into DllCall arguments: the target,
// then type/value pairs, then an optional return type. Values of non-string
// types that look numeric become numbers.
func callArgs(words []string) []vm.Value {
	args := make([]vm.Value, len(words))
	for i, w := range words {
		args[i] = w
		if i == 0 || i%2 == 1 || dll.ParseArgType(words[i-1], "").Kind.IsString() {
			continue
		}
		if n, ok := vm.ParseNumber(w); ok {
			args[i] = n
		}
	}
	return args
}

// CallCommand performs one DllCall
// Example: hotscript call kernel32\GetTickCount UInt
func CallCommand(env *Env, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: hotscript call <[dll\\]function> [type value]... [returnType]")
	}
	result, err := env.Interp.CallBuiltin("DllCall", callArgs(args)...)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.Out, "%s\n", vm.ToString(result))
	fmt.Fprintf(env.Out, "last error: %d\n", env.Interp.LastError())
	return nil
}

func intArg(args []string, i int, def int) (int, error) {
	if i >= len(args) || args[i] == "" {
		return def, nil
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("argument %d: %w", i+1, err)
	}
	return n, nil
}

// MatchCommand runs RegExMatch and prints the match object
// Example: hotscript match "2024-06-01" "(?<year>\d{4})"
func MatchCommand(env *Env, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: hotscript match <haystack> <needle> [startPos]")
	}
	start, err := intArg(args, 2, 1)
	if err != nil {
		return err
	}
	m := vm.NewVar("match", nil)
	pos, err := env.Interp.CallBuiltin("RegExMatch", args[0], args[1], m, int64(start))
	if err != nil {
		return err
	}
	fmt.Fprintf(env.Out, "position: %s\n", vm.ToString(pos))
	if obj, ok := m.Value.(*vm.Object); ok {
		count := vm.ToInt64(mustGet(obj, "Count"))
		for i := int64(0); i <= count; i++ {
			key := strconv.FormatInt(i, 10)
			fmt.Fprintf(env.Out, "  %s: %q at %s, length %s\n", key,
				vm.ToString(mustGet(obj, key)), vm.ToString(mustGet(obj, "Pos"+key)), vm.ToString(mustGet(obj, "Len"+key)))
		}
		if mark, ok := obj.Get("Mark"); ok {
			fmt.Fprintf(env.Out, "  mark: %s\n", vm.ToString(mark))
		}
	}
	return nil
}

func mustGet(obj *vm.Object, key string) vm.Value {
	v, _ := obj.Get(key)
	return v
}

// ReplaceCommand runs RegExReplace
// Example: hotscript replace "a-b-c" "-" "+"
func ReplaceCommand(env *Env, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: hotscript replace <haystack> <needle> <replacement> [limit] [startPos]")
	}
	limit, err := intArg(args, 3, -1)
	if err != nil {
		return err
	}
	start, err := intArg(args, 4, 1)
	if err != nil {
		return err
	}
	count := vm.NewVar("count", nil)
	out, err := env.Interp.CallBuiltin("RegExReplace", args[0], args[1], args[2], count, int64(limit), int64(start))
	if err != nil {
		return err
	}
	fmt.Fprintf(env.Out, "%s\n", vm.ToString(out))
	fmt.Fprintf(env.Out, "replacements: %s\n", vm.ToString(count.Value))
	return nil
}

// MonitorCommand serves the live trace stream and runs the shell until
// either stops
func MonitorCommand(env *Env, args []string) error {
	addr := env.Config.MonitorAddr
	if len(args) > 0 {
		addr = args[0]
	}
	if addr == "" {
		addr = defaultMonitorAddr
	}
	if env.Hub == nil {
		env.Config.MonitorAddr = addr
		env.Hub = newHub(env)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	g.Go(func() error {
		return env.Hub.ListenAndServe(ctx, addr)
	})
	g.Go(func() error {
		defer cancel()
		return repl.New(env.Interp, env.Runtime, env.Tracer, env.Out).Run(ctx, os.Stdin)
	})
	return g.Wait()
}

// TraceCommand prints the most recent events of a session stored in the
// SQL trace sink
func TraceCommand(env *Env, args []string) error {
	if env.SQL == nil {
		return fmt.Errorf("no trace database configured (set HOTSCRIPT_TRACE_DSN)")
	}
	if len(args) < 1 {
		return fmt.Errorf("usage: hotscript trace <session> [limit]")
	}
	limit, err := intArg(args, 1, 20)
	if err != nil {
		return err
	}
	events, err := env.SQL.Recent(args[0], limit)
	if err != nil {
		return err
	}
	for _, ev := range events {
		status := ev.Result
		if ev.Err != "" {
			status = "error: " + ev.Err
		}
		fmt.Fprintf(env.Out, "%s  %-13s %-30s %-10s %s\n",
			humanize.Time(ev.Time), ev.Kind, ev.Target, ev.Duration.Round(time.Microsecond), status)
	}
	return nil
}
