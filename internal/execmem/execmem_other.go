//go:build !windows && !linux && !darwin && !freebsd

package execmem

func allocCode(code []byte, size int) (uintptr, error) {
	return 0, ErrUnsupported
}

func allocData(size int) ([]byte, error) {
	return nil, ErrUnsupported
}
