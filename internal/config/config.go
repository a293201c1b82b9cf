// Package config loads runtime settings from the environment.
package config

import (
	"github.com/xyproto/env/v2"
)

const (
	DefaultMaxThreads     = 10
	DefaultRegexCacheSize = 100
	DefaultANSICodePage   = "windows-1252"
)

// Config holds the process-wide runtime settings
type Config struct {
	MaxThreads     int    // logical thread limit, checked when a callback starts a new thread
	RegexCacheSize int    // number of compiled patterns kept by the regex cache
	ANSICodePage   string // IANA name of the code page used for AStr on Windows
	TraceDSN       string // driver://dsn of the SQL trace sink, empty to disable
	MonitorAddr    string // listen address of the websocket monitor, empty to disable
	TraceLog       bool   // log every traced event
	PCRE2Library   string // path or name of the PCRE2 8-bit library, empty to search the usual names
}

// Load reads HOTSCRIPT_* variables, falling back to defaults. The
// environment is read again on every call.
func Load() *Config {
	env.Load()
	cfg := &Config{
		MaxThreads:     env.Int("HOTSCRIPT_MAX_THREADS", DefaultMaxThreads),
		RegexCacheSize: env.Int("HOTSCRIPT_REGEX_CACHE", DefaultRegexCacheSize),
		ANSICodePage:   env.Str("HOTSCRIPT_ANSI_CODEPAGE", DefaultANSICodePage),
		TraceDSN:       env.Str("HOTSCRIPT_TRACE_DSN"),
		MonitorAddr:    env.Str("HOTSCRIPT_MONITOR_ADDR"),
		TraceLog:       env.Bool("HOTSCRIPT_TRACE_LOG"),
		PCRE2Library:   env.Str("HOTSCRIPT_PCRE2_LIB"),
	}
	cfg.normalize()
	return cfg
}

func (c *Config) normalize() {
	if c.MaxThreads < 1 {
		c.MaxThreads = 1
	}
	if c.RegexCacheSize < 1 {
		c.RegexCacheSize = DefaultRegexCacheSize
	}
	if c.ANSICodePage == "" {
		c.ANSICodePage = DefaultANSICodePage
	}
}
