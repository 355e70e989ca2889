package lock

import (
	"github.com/arborxml/arbor/util/logger"
	"github.com/arborxml/arbor/util/metrics"
)

type heldLatch struct {
	latch *Latch
	mode  Mode
	path  string
}

// ManagedLock is the scoped ownership token returned by the lock manager. It
// owns the one or two latch acquisitions that survived the coupling
// traversal (the target, plus the retained parent for parent-locking
// writes) and releases them when closed.
//
// A managed lock belongs to the goroutine that acquired it and must be
// closed on every exit path, typically with defer. Closing releases the
// acquisitions in reverse acquisition order and emits a Released event for
// each. Close is idempotent; a second call is a no-op that logs an
// unbalanced-release diagnostic.
type ManagedLock struct {
	table   *LockTable
	log     *logger.Logger
	groupID uint64
	owner   int64
	held    []heldLatch
	closed  bool
}

func newManagedLock(table *LockTable, log *logger.Logger, groupID uint64, owner int64, held []heldLatch) *ManagedLock {
	return &ManagedLock{
		table:   table,
		log:     log,
		groupID: groupID,
		owner:   owner,
		held:    held,
	}
}

// Close releases the held latches in reverse acquisition order.
func (m *ManagedLock) Close() {
	if m.closed {
		m.log.Warnf("unbalanced release of managed lock (group %d)", m.groupID)
		metrics.UnbalancedReleasesTotal.Inc()
		return
	}
	m.closed = true

	for i := len(m.held) - 1; i >= 0; i-- {
		h := m.held[i]
		var released bool
		switch h.mode {
		case ReadLock:
			released = h.latch.releaseRead(m.owner)
		case WriteLock:
			released = h.latch.releaseWrite(m.owner)
		}
		if !released {
			m.log.Errorf("latch for %s was not held in %s mode by goroutine %d", h.path, h.mode, m.owner)
			continue
		}
		m.table.Released(m.groupID, h.path, h.mode)
	}
}

// HoldCount returns the number of latch acquisitions the lock still owns.
func (m *ManagedLock) HoldCount() int {
	if m.closed {
		return 0
	}
	return len(m.held)
}
