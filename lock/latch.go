package lock

import (
	"errors"
	"sync"
	"time"

	"github.com/arborxml/arbor/util/goid"
)

// ErrLatchWaitTimeout is returned by latch acquisition when the supplied
// timeout elapses before the latch can be granted. The lock manager wraps it
// with operation and path context before it reaches callers.
var ErrLatchWaitTimeout = errors.New("timed out waiting for latch")

// Latch is a reentrant multi-reader/single-writer latch.
//
// A goroutine already holding the read side may re-acquire it, and a
// goroutine holding the write side may re-acquire both sides. This matters
// for the stripe pool: an ancestor and a descendant collection may hash to
// the same latch, and the coupling traversal then acquires it twice on the
// same goroutine. Upgrading a read hold to a write hold is not supported and
// will block; the traversal protocol never attempts it.
//
// Writers are preferred: a pending write acquisition blocks new first-time
// readers. Reentrant re-acquisitions are always granted so that preference
// never blocks a traversal against itself.
type Latch struct {
	mu             sync.Mutex
	readers        map[int64]int
	writer         int64
	writerHolds    int
	waitingWriters int
	turnstile      chan struct{}
}

// NewLatch creates an unheld latch.
func NewLatch() *Latch {
	return &Latch{
		readers:   make(map[int64]int),
		turnstile: make(chan struct{}),
	}
}

// AcquireRead blocks until the read side can be granted to the calling
// goroutine. A timeout of zero means wait forever; otherwise
// ErrLatchWaitTimeout is returned once the timeout elapses.
func (l *Latch) AcquireRead(timeout time.Duration) error {
	return l.acquireRead(goid.Get(), timeout)
}

// AcquireWrite blocks until the write side can be granted to the calling
// goroutine. A timeout of zero means wait forever; otherwise
// ErrLatchWaitTimeout is returned once the timeout elapses.
func (l *Latch) AcquireWrite(timeout time.Duration) error {
	return l.acquireWrite(goid.Get(), timeout)
}

// ReleaseRead releases one read hold of the calling goroutine. It returns
// false if the goroutine does not hold the read side.
func (l *Latch) ReleaseRead() bool {
	return l.releaseRead(goid.Get())
}

// ReleaseWrite releases one write hold of the calling goroutine. It returns
// false if the goroutine does not hold the write side.
func (l *Latch) ReleaseWrite() bool {
	return l.releaseWrite(goid.Get())
}

// HoldsRead reports whether the calling goroutine holds the read side.
func (l *Latch) HoldsRead() bool {
	return l.IsHeldForReadBy(goid.Get())
}

// HoldsWrite reports whether the calling goroutine holds the write side.
func (l *Latch) HoldsWrite() bool {
	return l.IsHeldForWriteBy(goid.Get())
}

// IsHeldForReadBy reports whether the goroutine with the given id holds the
// read side. The document unlock path uses this to release only the holds
// the current goroutine actually took.
func (l *Latch) IsHeldForReadBy(gid int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readers[gid] > 0
}

// IsHeldForWriteBy reports whether the goroutine with the given id holds the
// write side.
func (l *Latch) IsHeldForWriteBy(gid int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writer == gid && l.writerHolds > 0
}

// IsWriteLocked reports whether any goroutine holds the write side.
func (l *Latch) IsWriteLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writerHolds > 0
}

// ReaderCount returns the number of goroutines currently holding the read
// side.
func (l *Latch) ReaderCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.readers)
}

func (l *Latch) acquire(gid int64, mode Mode, timeout time.Duration) error {
	if mode == WriteLock {
		return l.acquireWrite(gid, timeout)
	}
	return l.acquireRead(gid, timeout)
}

func (l *Latch) canReadLocked(gid int64) bool {
	if l.writerHolds > 0 {
		// read acquisition while holding the write side is permitted
		return l.writer == gid
	}
	if l.readers[gid] > 0 {
		return true
	}
	return l.waitingWriters == 0
}

func (l *Latch) canWriteLocked(gid int64) bool {
	if l.writerHolds > 0 {
		return l.writer == gid
	}
	return len(l.readers) == 0
}

func (l *Latch) acquireRead(gid int64, timeout time.Duration) error {
	deadline := deadlineFor(timeout)

	l.mu.Lock()
	for !l.canReadLocked(gid) {
		turn := l.turnstile
		l.mu.Unlock()
		if err := awaitTurn(turn, deadline); err != nil {
			return err
		}
		l.mu.Lock()
	}
	l.readers[gid]++
	l.mu.Unlock()
	return nil
}

func (l *Latch) acquireWrite(gid int64, timeout time.Duration) error {
	deadline := deadlineFor(timeout)

	l.mu.Lock()
	if l.writerHolds > 0 && l.writer == gid {
		l.writerHolds++
		l.mu.Unlock()
		return nil
	}

	l.waitingWriters++
	for !l.canWriteLocked(gid) {
		turn := l.turnstile
		l.mu.Unlock()
		if err := awaitTurn(turn, deadline); err != nil {
			l.mu.Lock()
			l.waitingWriters--
			// readers parked by writer preference must be re-examined
			l.broadcastLocked()
			l.mu.Unlock()
			return err
		}
		l.mu.Lock()
	}
	l.waitingWriters--
	l.writer = gid
	l.writerHolds = 1
	l.mu.Unlock()
	return nil
}

func (l *Latch) releaseRead(gid int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readers[gid] == 0 {
		return false
	}
	l.readers[gid]--
	if l.readers[gid] == 0 {
		delete(l.readers, gid)
	}
	l.broadcastLocked()
	return true
}

func (l *Latch) releaseWrite(gid int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer != gid || l.writerHolds == 0 {
		return false
	}
	l.writerHolds--
	if l.writerHolds == 0 {
		l.writer = 0
	}
	l.broadcastLocked()
	return true
}

// broadcastLocked wakes every waiter so it can re-check the latch state.
// Callers must hold l.mu.
func (l *Latch) broadcastLocked() {
	close(l.turnstile)
	l.turnstile = make(chan struct{})
}

func deadlineFor(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

func awaitTurn(turn <-chan struct{}, deadline time.Time) error {
	if deadline.IsZero() {
		<-turn
		return nil
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return ErrLatchWaitTimeout
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-turn:
		return nil
	case <-timer.C:
		return ErrLatchWaitTimeout
	}
}
