package lock

import (
	"fmt"
	"time"

	"github.com/arborxml/arbor/collpath"
	"github.com/arborxml/arbor/dom"
	"github.com/arborxml/arbor/util/errors"
	"github.com/arborxml/arbor/util/goid"
	"github.com/arborxml/arbor/util/logger"
	"github.com/arborxml/arbor/util/metrics"
)

// LockManager serializes concurrent access to the collection namespace.
//
// Collection acquisition walks the ancestor chain of the target path from
// the root collection downwards, coupling the latches: the latch for each
// child is acquired before the latch for its parent is released, so the
// descent is covered by a held lock at every instant and at most two latches
// are held at once. Because every goroutine descends strictly root to leaf,
// overlapping acquisitions cannot deadlock.
//
// Latches come from fixed stripe pools keyed by path hash, one pool for
// collections and one for documents. Every attempt, acquisition, failure
// and release is reported to the lock table.
type LockManager struct {
	collectionPool *StripePool
	documentPool   *StripePool
	table          *LockTable
	log            *logger.Logger
	lockTimeout    time.Duration
}

// NewLockManager creates a lock manager with concurrencyLevel stripes per
// pool. concurrencyLevel must be at least 1.
func NewLockManager(concurrencyLevel int) (*LockManager, error) {
	if concurrencyLevel < 1 {
		return nil, fmt.Errorf("concurrency level must be >= 1, got %d", concurrencyLevel)
	}
	collectionPool, err := NewStripePool(concurrencyLevel)
	if err != nil {
		return nil, err
	}
	documentPool, err := NewStripePool(concurrencyLevel)
	if err != nil {
		return nil, err
	}
	return &LockManager{
		collectionPool: collectionPool,
		documentPool:   documentPool,
		table:          Table(),
		log:            logger.NewLogger("lockmanager"),
	}, nil
}

// SetLockTimeout sets the per-acquisition deadline applied to every latch
// step. Zero means wait forever, which is the default.
func (lm *LockManager) SetLockTimeout(timeout time.Duration) {
	lm.lockTimeout = timeout
}

// CollectionLatch returns the latch that the canonical form of path maps
// to. It is a raw accessor for diagnostics and tests; it does not acquire
// anything.
func (lm *LockManager) CollectionLatch(path string) (*Latch, error) {
	p, err := collpath.Canonicalize(path)
	if err != nil {
		return nil, err
	}
	return lm.collectionPool.Get(p), nil
}

// AcquireCollectionReadLock locks the collection at path for reading and
// returns the managed lock holding the single read acquisition on the
// target. Ancestors are read-coupled on the way down.
func (lm *LockManager) AcquireCollectionReadLock(path string) (*ManagedLock, error) {
	chain, err := collpath.Ancestors(path)
	if err != nil {
		return nil, err
	}
	return lm.acquireCollection(chain, ReadLock, false, "acquireCollectionReadLock")
}

// AcquireCollectionWriteLock locks the collection at path for writing.
// Ancestors are read-coupled on the way down. With lockParent set, the
// direct parent is write-locked instead and retained alongside the target,
// which callers need when the operation will modify the parent too, e.g.
// creating or removing a sub-collection. When the target is the root
// collection only the root is write-locked; there is no parent of the root.
func (lm *LockManager) AcquireCollectionWriteLock(path string, lockParent bool) (*ManagedLock, error) {
	chain, err := collpath.Ancestors(path)
	if err != nil {
		return nil, err
	}
	return lm.acquireCollection(chain, WriteLock, lockParent, "acquireCollectionWriteLock")
}

type traversalHold struct {
	heldLatch
	retained bool
}

func (lm *LockManager) acquireCollection(chain []string, targetMode Mode, lockParent bool, op string) (*ManagedLock, error) {
	gid := goid.Get()
	group := lm.table.NextGroupID()
	last := len(chain) - 1

	held := make([]traversalHold, 0, 2)
	for i, path := range chain {
		mode := ReadLock
		retain := false
		switch {
		case i == last:
			mode = targetMode
			retain = true
		case lockParent && targetMode == WriteLock && i == last-1:
			mode = WriteLock
			retain = true
		}

		latch := lm.collectionPool.Get(path)
		lm.table.Attempt(group, path, mode)
		waitStart := time.Now()
		if err := latch.acquire(gid, mode, lm.lockTimeout); err != nil {
			lm.table.AcquireFailed(group, path, mode, err.Error())
			lm.unwind(group, gid, held)
			return nil, errors.NewLockTimeoutError(op, path, err)
		}
		metrics.RecordWait(mode.String(), time.Since(waitStart).Seconds())
		lm.table.Acquired(group, path, mode)
		held = append(held, traversalHold{heldLatch: heldLatch{latch: latch, mode: mode, path: path}, retained: retain})

		// couple: drop the hold above us unless it is retained
		if len(held) > 1 && !held[len(held)-2].retained {
			prev := held[len(held)-2]
			lm.release(gid, prev.heldLatch)
			lm.table.Released(group, prev.path, prev.mode)
			held = append(held[:len(held)-2], held[len(held)-1])
		}
	}

	owned := make([]heldLatch, len(held))
	for i, h := range held {
		owned[i] = h.heldLatch
	}
	return newManagedLock(lm.table, lm.log, group, gid, owned), nil
}

// unwind releases the traversal's held latches in reverse order after a
// failed acquisition, emitting a Released event for each.
func (lm *LockManager) unwind(group uint64, gid int64, held []traversalHold) {
	for i := len(held) - 1; i >= 0; i-- {
		lm.release(gid, held[i].heldLatch)
		lm.table.Released(group, held[i].path, held[i].mode)
	}
}

func (lm *LockManager) release(gid int64, h heldLatch) {
	switch h.mode {
	case ReadLock:
		h.latch.releaseRead(gid)
	case WriteLock:
		h.latch.releaseWrite(gid)
	}
}

// LockDocuments acquires a per-document latch for every document in the
// set, shared or exclusive. Documents are locked in ascending document-id
// order; every caller using the same order is what keeps concurrent
// whole-set requests deadlock free. On failure the documents locked so far
// are released in reverse and the error is returned.
func (lm *LockManager) LockDocuments(set *dom.DocumentSet, exclusive bool) error {
	gid := goid.Get()
	group := lm.table.NextGroupID()
	mode := ReadLock
	if exclusive {
		mode = WriteLock
	}

	var locked []*dom.Document
	var failErr error
	set.Ascend(func(doc *dom.Document) bool {
		latch := lm.documentPool.Get(doc.URI())
		lm.table.Attempt(group, doc.URI(), mode)
		if err := latch.acquire(gid, mode, lm.lockTimeout); err != nil {
			lm.table.AcquireFailed(group, doc.URI(), mode, err.Error())
			failErr = errors.NewLockTimeoutError("lockDocuments", doc.URI(), err)
			return false
		}
		lm.table.Acquired(group, doc.URI(), mode)
		locked = append(locked, doc)
		return true
	})

	if failErr != nil {
		for i := len(locked) - 1; i >= 0; i-- {
			doc := locked[i]
			lm.release(gid, heldLatch{latch: lm.documentPool.Get(doc.URI()), mode: mode, path: doc.URI()})
			lm.table.Released(group, doc.URI(), mode)
		}
		return failErr
	}
	return nil
}

// UnlockDocuments releases the per-document latches of the set for the
// requested mode. Only latches the calling goroutine still holds in that
// mode are released, so it is safe to call with a superset of what was
// locked.
func (lm *LockManager) UnlockDocuments(set *dom.DocumentSet, exclusive bool) {
	gid := goid.Get()
	group := lm.table.NextGroupID()
	set.Ascend(func(doc *dom.Document) bool {
		latch := lm.documentPool.Get(doc.URI())
		if exclusive {
			if latch.IsHeldForWriteBy(gid) && latch.releaseWrite(gid) {
				lm.table.Released(group, doc.URI(), WriteLock)
			}
		} else {
			if latch.IsHeldForReadBy(gid) && latch.releaseRead(gid) {
				lm.table.Released(group, doc.URI(), ReadLock)
			}
		}
		return true
	})
}
