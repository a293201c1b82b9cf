// Package commands implements the hotscript subcommands
package commands

import (
	"fmt"
	"io"
	"log"
	"os"

	"hotscript/internal/config"
	"hotscript/internal/dll"
	"hotscript/internal/regex"
	"hotscript/internal/stdlib"
	"hotscript/internal/trace"
	"hotscript/internal/vm"
)

// Env is the interpreter and subsystems a command runs against
type Env struct {
	Config  *config.Config
	Interp  *vm.Interp
	Runtime *stdlib.Runtime
	Tracer  *trace.Recorder
	Hub     *trace.Hub     // nil unless a monitor address is configured
	SQL     *trace.SQLSink // nil unless a trace DSN is configured
	Out     io.Writer
	Logger  *log.Logger
}

// NewEnv builds the runtime described by cfg
func NewEnv(cfg *config.Config, out io.Writer) (*Env, error) {
	logger := log.New(os.Stderr, "hotscript: ", log.LstdFlags)
	env := &Env{Config: cfg, Out: out, Logger: logger}

	env.Tracer = trace.NewRecorder(logger)
	if cfg.TraceLog {
		env.Tracer.Add(trace.NewLogSink(logger))
	}
	if cfg.TraceDSN != "" {
		sink, err := trace.OpenSQLSink(cfg.TraceDSN)
		if err != nil {
			return nil, fmt.Errorf("trace sink: %w", err)
		}
		env.SQL = sink
		env.Tracer.Add(sink)
	}
	if cfg.MonitorAddr != "" {
		env.Hub = newHub(env)
	}

	engine, err := regex.NewDefaultEngine(cfg.PCRE2Library)
	if err != nil {
		logger.Printf("regex: %v; using the regexp2 engine", err)
	}
	if err := regex.Configure(engine, cfg.RegexCacheSize); err != nil {
		env.Tracer.Close()
		return nil, err
	}
	regex.Shared().Tracer = env.Tracer

	codec, err := dll.NewCodec(dll.ANSICharset(cfg.ANSICodePage))
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("code page %q: %w", cfg.ANSICodePage, err)
	}
	env.Interp = vm.NewInterp(vm.WithMaxThreads(cfg.MaxThreads), vm.WithLogOutput(os.Stderr))
	env.Runtime = stdlib.NewRuntime(env.Interp, codec, env.Tracer)
	stdlib.RegisterNativeFunctions(env.Interp, env.Runtime)
	return env, nil
}

// newHub creates the websocket monitor and attaches it to the tracer
func newHub(env *Env) *trace.Hub {
	h := trace.NewHub(env.Logger)
	env.Tracer.Add(h)
	return h
}

// Close releases the regex cache and the trace sinks
func (e *Env) Close() error {
	regex.Shutdown()
	return e.Tracer.Close()
}
