//go:build !(windows && (amd64 || 386)) && !((linux || darwin) && amd64)

package callback

import "errors"

var errNoStub = errors.New("callbacks are not supported on this platform")

func reentryStub() (uintptr, error) {
	return 0, errNoStub
}
