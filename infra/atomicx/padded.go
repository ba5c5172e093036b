package atomicx

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// PaddedInt64 is an atomic counter alone on its cache line.
type PaddedInt64 struct {
	_ cpu.CacheLinePad
	atomic.Int64
	_ cpu.CacheLinePad
}
