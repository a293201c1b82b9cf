//go:build !((linux || darwin || freebsd || windows) && (amd64 || arm64))

package regex

import (
	"fmt"
	"runtime"
)

// PCRE2Engine is unavailable on this platform
type PCRE2Engine struct{}

var errNoPCRE2 = fmt.Errorf("pcre2 not available on %s/%s", runtime.GOOS, runtime.GOARCH)

// NewPCRE2Engine always fails here: purego has no callbacks on this
// platform.
func NewPCRE2Engine(string) (*PCRE2Engine, error) {
	return nil, errNoPCRE2
}

func (*PCRE2Engine) Compile(string, Options) (Pattern, error) { return nil, errNoPCRE2 }

func (*PCRE2Engine) Study(Pattern) (Extra, error) { return nil, errNoPCRE2 }

func (*PCRE2Engine) Release(Pattern, Extra) {}
