//go:build !windows && !linux && !darwin && !freebsd

package native

type noLoader struct{}

var platformLoader Loader = noLoader{}

func (noLoader) GetModuleHandle(string) (uintptr, bool)         { return 0, false }
func (noLoader) LoadLibrary(string) (uintptr, error)            { return 0, ErrUnsupported }
func (noLoader) GetProcAddress(uintptr, string) (uintptr, bool) { return 0, false }
func (noLoader) SystemModules() []string                        { return nil }
