// Package execmem is the one place executable memory is created. Code is
// written into read-write pages which are then flipped to read-execute; a
// page is never writable and executable at the same time.
package execmem

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
)

// ErrUnsupported is returned where the platform cannot map executable memory
var ErrUnsupported = errors.New("executable memory is not supported on this platform")

var (
	codeBytes atomic.Int64
	dataBytes atomic.Int64
	blocks    atomic.Int64
)

// Stats describes the memory handed out so far. Blocks are never freed.
type Stats struct {
	Blocks    int64
	CodeBytes int64
	DataBytes int64
}

// Usage returns the current allocation statistics
func Usage() Stats {
	return Stats{Blocks: blocks.Load(), CodeBytes: codeBytes.Load(), DataBytes: dataBytes.Load()}
}

func roundPage(n int) int {
	ps := os.Getpagesize()
	return (n + ps - 1) &^ (ps - 1)
}

// AllocCode copies code into freshly mapped pages, makes them read-execute
// and returns the address of the first byte.
func AllocCode(code []byte) (uintptr, error) {
	if len(code) == 0 {
		return 0, fmt.Errorf("execmem: empty code block")
	}
	size := roundPage(len(code))
	addr, err := allocCode(code, size)
	if err != nil {
		return 0, err
	}
	blocks.Add(1)
	codeBytes.Add(int64(size))
	return addr, nil
}

// AllocData maps size bytes of zeroed read-write memory outside the Go heap,
// for state shared with generated code.
func AllocData(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("execmem: invalid data size %d", size)
	}
	size = roundPage(size)
	b, err := allocData(size)
	if err != nil {
		return nil, err
	}
	blocks.Add(1)
	dataBytes.Add(int64(size))
	return b, nil
}
