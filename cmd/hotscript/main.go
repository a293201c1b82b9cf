// cmd/hotscript/main.go
package main

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"hotscript/cmd/hotscript/commands"
	"hotscript/internal/callback"
	"hotscript/internal/config"
)

const VERSION = "0.4.0"

// Build variables - can be set during build with ldflags
var (
	BuildDate = time.Now().Format("2006-01-02")
	GitCommit = "unknown"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		return
	}

	switch args[0] {
	case "--help", "-h", "help":
		showUsage()
		return
	case "--version", "-v", "version":
		showVersion()
		return
	}

	run, ok := map[string]func(*commands.Env, []string) error{
		"repl":    commands.ReplCommand,
		"call":    commands.CallCommand,
		"match":   commands.MatchCommand,
		"replace": commands.ReplaceCommand,
		"monitor": commands.MonitorCommand,
		"trace":   commands.TraceCommand,
	}[args[0]]
	if !ok {
		fmt.Printf("Unknown command: %s\n\n", args[0])
		showUsage()
		os.Exit(1)
	}

	env, err := commands.NewEnv(config.Load(), os.Stdout)
	if err != nil {
		log.Fatalf("hotscript: %v", err)
	}
	err = run(env, args[1:])
	env.Close()
	if err != nil {
		log.Fatalf("hotscript: %v", err)
	}
}

func showUsage() {
	fmt.Println("hotscript - native interop runtime")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  hotscript repl                                   Start the interactive shell")
	fmt.Println("  hotscript call <[dll\\]func> [type value]... [ret] Call a native function")
	fmt.Println("  hotscript match <haystack> <needle> [start]      Run RegExMatch")
	fmt.Println("  hotscript replace <haystack> <needle> <repl> [limit] [start]")
	fmt.Println("                                                   Run RegExReplace")
	fmt.Println("  hotscript monitor [addr]                         Shell plus a websocket trace stream")
	fmt.Println("  hotscript trace <session> [limit]                Show recorded trace events")
	fmt.Println("  hotscript version                                Show version information")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  HOTSCRIPT_MAX_THREADS    logical thread limit for callbacks (default 10)")
	fmt.Println("  HOTSCRIPT_REGEX_CACHE    compiled pattern cache size (default 100)")
	fmt.Println("  HOTSCRIPT_ANSI_CODEPAGE  code page of AStr strings on Windows (default windows-1252)")
	fmt.Println("  HOTSCRIPT_TRACE_DSN      sqlite://, sqlite3://, postgres://, mysql:// or sqlserver:// trace store")
	fmt.Println("  HOTSCRIPT_MONITOR_ADDR   websocket monitor address")
	fmt.Println("  HOTSCRIPT_TRACE_LOG      log every traced call")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println(`  hotscript call kernel32\GetTickCount UInt`)
	fmt.Println(`  hotscript match "2024-06-01" "(?<year>\d{4})"`)
	fmt.Println(`  hotscript replace "a-b-c" "-" "+"`)
}

func showVersion() {
	fmt.Printf("hotscript v%s\n", VERSION)
	fmt.Printf("Build Date: %s\n", BuildDate)

	// Try to get git commit if we're in a repo
	if gitCmd, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output(); err == nil {
		GitCommit = strings.TrimSpace(string(gitCmd))
	}
	if GitCommit != "unknown" {
		fmt.Printf("Git Commit: %s\n", GitCommit)
	}
	fmt.Printf("Platform: %s/%s (callback ABI: %s)\n", runtime.GOOS, runtime.GOARCH, callback.HostABI())
}
