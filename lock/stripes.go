package lock

import (
	"fmt"
	"hash/fnv"
)

// StripePool is a fixed array of latches indexed by path hash. The same path
// always maps to the same latch for the pool's lifetime; distinct paths may
// collide onto one latch, which reduces parallelism but never correctness,
// because the traversal order is derived from path ancestry rather than
// latch identity.
type StripePool struct {
	latches []*Latch
}

// NewStripePool creates a pool of size latches. Size must be at least 1.
func NewStripePool(size int) (*StripePool, error) {
	if size < 1 {
		return nil, fmt.Errorf("stripe pool size must be >= 1, got %d", size)
	}
	latches := make([]*Latch, size)
	for i := range latches {
		latches[i] = NewLatch()
	}
	return &StripePool{latches: latches}, nil
}

// Get returns the latch that path maps to.
func (p *StripePool) Get(path string) *Latch {
	h := fnv.New32a()
	h.Write([]byte(path))
	return p.latches[h.Sum32()%uint32(len(p.latches))]
}

// Size returns the number of stripes in the pool.
func (p *StripePool) Size() int {
	return len(p.latches)
}
