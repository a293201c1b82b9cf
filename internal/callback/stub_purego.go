//go:build (linux || darwin) && amd64

package callback

import (
	"sync"

	"github.com/ebitengine/purego"
)

var (
	stubOnce sync.Once
	stubAddr uintptr
)

// reentryStub returns the C-callable entry point trampolines call. purego
// has a fixed callback table, so there is one.
func reentryStub() (uintptr, error) {
	stubOnce.Do(func() {
		stubAddr = purego.NewCallback(reenter)
	})
	return stubAddr, nil
}
