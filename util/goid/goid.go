package goid

import (
	"runtime"
	"strconv"
	"strings"
)

// Get returns the id of the calling goroutine.
//
// The runtime does not expose goroutine ids, so this parses the header line
// of a single-goroutine stack dump ("goroutine 123 [running]:"). The latch
// layer needs a stable per-goroutine identity for reentrancy accounting and
// for the is-held-by queries used when unlocking document sets; the cost of
// one small runtime.Stack call per acquisition is acceptable there.
func Get() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	s := strings.TrimPrefix(string(buf[:n]), "goroutine ")
	i := strings.IndexByte(s, ' ')
	if i < 0 {
		return 0
	}
	id, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return 0
	}
	return id
}
