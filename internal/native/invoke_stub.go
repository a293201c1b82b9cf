//go:build !(windows && (amd64 || 386)) && !((linux || darwin || freebsd) && (amd64 || arm64))

package native

type stubInvoker struct{}

func newPlatformInvoker() Invoker {
	return stubInvoker{}
}

func (stubInvoker) Invoke(*Call) (Outcome, error) {
	return Outcome{}, ErrUnsupported
}
