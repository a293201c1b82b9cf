//go:build windows && (amd64 || 386)

package callback

import (
	"sync"

	"golang.org/x/sys/windows"
)

var (
	stubOnce sync.Once
	stubAddr uintptr
)

// reentryStub returns the stdcall entry point trampolines call. Windows
// limits how many Go callbacks a process may create, so there is one.
func reentryStub() (uintptr, error) {
	stubOnce.Do(func() {
		stubAddr = windows.NewCallback(reenter)
	})
	return stubAddr, nil
}
