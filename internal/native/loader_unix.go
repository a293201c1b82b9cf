//go:build linux || darwin || freebsd

package native

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/ebitengine/purego"
)

// unixLoader keeps every handle it opened; dlopen has no cheap
// "already loaded" query that leaves the reference count alone.
type unixLoader struct {
	mu      sync.Mutex
	handles map[string]uintptr
}

var platformLoader Loader = &unixLoader{handles: make(map[string]uintptr)}

func libraryNames(name string) []string {
	if strings.ContainsAny(name, "/.") {
		return []string{name}
	}
	switch runtime.GOOS {
	case "darwin":
		return []string{"lib" + name + ".dylib", name}
	default:
		return []string{"lib" + name + ".so", name}
	}
}

func (l *unixLoader) GetModuleHandle(name string) (uintptr, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.handles[name]
	return h, ok
}

func (l *unixLoader) LoadLibrary(name string) (uintptr, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.handles[name]; ok {
		return h, nil
	}
	var lastErr error
	for _, candidate := range libraryNames(name) {
		h, err := purego.Dlopen(candidate, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			l.handles[name] = h
			return h, nil
		}
		lastErr = err
	}
	return 0, fmt.Errorf("load %s: %w", name, lastErr)
}

func (l *unixLoader) GetProcAddress(module uintptr, name string) (uintptr, bool) {
	addr, err := purego.Dlsym(module, name)
	if err != nil || addr == 0 {
		return 0, false
	}
	return addr, true
}

func (l *unixLoader) SystemModules() []string {
	if runtime.GOOS == "darwin" {
		return []string{"/usr/lib/libSystem.B.dylib"}
	}
	return []string{"libc.so.6", "libm.so.6"}
}
