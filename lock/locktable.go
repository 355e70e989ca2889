package lock

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arborxml/arbor/util/goid"
	"github.com/arborxml/arbor/util/logger"
	"github.com/arborxml/arbor/util/metrics"
)

// DefaultEventQueueCapacity bounds the dispatch queue when the table has not
// been configured otherwise.
const DefaultEventQueueCapacity = 4096

type queueItemKind uint8

const (
	itemEvent queueItemKind = iota
	itemRegister
	itemDeregister
)

type queueItem struct {
	kind     queueItemKind
	event    LockAction
	listener EventListener
}

// LockCounts aggregates outstanding hold counts per mode for one path.
type LockCounts struct {
	Read  int
	Write int
}

// LockTable is the process-wide ledger of lock activity. Every attempt,
// acquisition, failure and release flows through it; events are queued and
// fanned out to registered listeners by a single dedicated dispatcher
// goroutine, so listeners observe a consistent order without slowing the
// goroutines doing the locking.
//
// Events are diagnostic rather than correctness-critical: when the queue is
// full the oldest event is dropped and a counter incremented. Listener
// registration and deregistration are handled on the dispatcher goroutine as
// well; callers observe completion by polling the listener (the recording
// listeners used in tests expose IsRegistered for exactly this).
type LockTable struct {
	log        *logger.Logger
	instanceID string
	start      time.Time
	groupSeq   atomic.Uint64
	dropped    atomic.Uint64

	mu     sync.Mutex
	queue  []queueItem
	events int
	cap    int
	closed bool
	notify chan struct{}
	done   chan struct{}

	// dispatcher-owned, never touched from other goroutines
	listeners []EventListener

	ledgerMu   sync.Mutex
	attempting map[string]LockCounts
	held       map[string]LockCounts
}

func newLockTable(queueCapacity int) *LockTable {
	if queueCapacity < 1 {
		queueCapacity = DefaultEventQueueCapacity
	}
	return &LockTable{
		log:        logger.NewLogger("locktable"),
		instanceID: uuid.NewString(),
		start:      time.Now(),
		cap:        queueCapacity,
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		attempting: make(map[string]LockCounts),
		held:       make(map[string]LockCounts),
	}
}

var (
	tableMu       sync.Mutex
	tableInstance *LockTable
	tableCapacity = DefaultEventQueueCapacity
)

// Table returns the process-wide lock table, creating it and starting its
// dispatcher on first use.
func Table() *LockTable {
	tableMu.Lock()
	defer tableMu.Unlock()
	if tableInstance == nil {
		tableInstance = newLockTable(tableCapacity)
		go tableInstance.run()
		tableInstance.log.Infof("lock table %s started, event queue capacity %d",
			tableInstance.instanceID, tableInstance.cap)
	}
	return tableInstance
}

// ConfigureTableQueueCapacity sets the event queue capacity used when the
// process-wide table is created. It has no effect once the table exists.
func ConfigureTableQueueCapacity(capacity int) {
	tableMu.Lock()
	defer tableMu.Unlock()
	if tableInstance != nil {
		tableInstance.log.Warnf("lock table already started, ignoring queue capacity %d", capacity)
		return
	}
	if capacity >= 1 {
		tableCapacity = capacity
	}
}

// InstanceID returns the unique id of this lock table instance. The event
// journal stamps it into every row so that runs can be told apart.
func (t *LockTable) InstanceID() string {
	return t.instanceID
}

// NextGroupID returns a fresh correlation id for one logical acquisition.
func (t *LockTable) NextGroupID() uint64 {
	return t.groupSeq.Add(1)
}

// DroppedEvents returns the number of events dropped due to a full queue.
func (t *LockTable) DroppedEvents() uint64 {
	return t.dropped.Load()
}

// RegisterListener inserts the listener into the registry. The listener's
// Registered callback runs on the dispatcher goroutine once the insertion
// has taken effect.
func (t *LockTable) RegisterListener(l EventListener) {
	t.enqueue(queueItem{kind: itemRegister, listener: l})
}

// DeregisterListener removes the listener from the registry. The listener's
// Unregistered callback runs on the dispatcher goroutine once the removal
// has taken effect; events enqueued before the removal are still delivered.
func (t *LockTable) DeregisterListener(l EventListener) {
	t.enqueue(queueItem{kind: itemDeregister, listener: l})
}

// Attempt records that a goroutine is about to block on a latch.
func (t *LockTable) Attempt(groupID uint64, id string, mode Mode) {
	t.updateLedger(id, mode, Attempt)
	metrics.RecordAttempt(mode.String())
	t.emit(LockAction{Action: Attempt, ID: id, Mode: mode, GroupID: groupID})
}

// Acquired records a successful latch acquisition.
func (t *LockTable) Acquired(groupID uint64, id string, mode Mode) {
	t.updateLedger(id, mode, Acquired)
	metrics.RecordAcquired(mode.String())
	t.emit(LockAction{Action: Acquired, ID: id, Mode: mode, GroupID: groupID})
}

// AcquireFailed records a latch acquisition that failed, e.g. on timeout.
func (t *LockTable) AcquireFailed(groupID uint64, id string, mode Mode, reason string) {
	t.updateLedger(id, mode, Failed)
	metrics.RecordFailed(mode.String())
	t.emit(LockAction{Action: Failed, ID: id, Mode: mode, GroupID: groupID, Reason: reason})
}

// Released records a latch release.
func (t *LockTable) Released(groupID uint64, id string, mode Mode) {
	t.updateLedger(id, mode, Released)
	metrics.RecordReleased(mode.String())
	t.emit(LockAction{Action: Released, ID: id, Mode: mode, GroupID: groupID})
}

// Snapshot returns copies of the outstanding attempt and hold ledgers,
// keyed by path.
func (t *LockTable) Snapshot() (attempting, held map[string]LockCounts) {
	t.ledgerMu.Lock()
	defer t.ledgerMu.Unlock()
	attempting = make(map[string]LockCounts, len(t.attempting))
	for k, v := range t.attempting {
		attempting[k] = v
	}
	held = make(map[string]LockCounts, len(t.held))
	for k, v := range t.held {
		held[k] = v
	}
	return attempting, held
}

// Shutdown stops the dispatcher after the remaining queue has been drained.
// Intended for process teardown; emissions after shutdown are discarded.
func (t *LockTable) Shutdown() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()
	select {
	case t.notify <- struct{}{}:
	default:
	}
	<-t.done
	t.log.Infof("lock table %s stopped, %d events dropped", t.instanceID, t.dropped.Load())
}

func (t *LockTable) emit(action LockAction) {
	action.Thread = goid.Get()
	action.TimestampNS = uint64(time.Since(t.start))
	t.enqueue(queueItem{kind: itemEvent, event: action})
}

func (t *LockTable) enqueue(item queueItem) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if item.kind == itemEvent && t.events >= t.cap {
		for i := range t.queue {
			if t.queue[i].kind == itemEvent {
				t.queue = append(t.queue[:i], t.queue[i+1:]...)
				t.events--
				break
			}
		}
		t.dropped.Add(1)
		metrics.EventsDroppedTotal.Inc()
	}
	t.queue = append(t.queue, item)
	if item.kind == itemEvent {
		t.events++
	}
	t.mu.Unlock()

	select {
	case t.notify <- struct{}{}:
	default:
	}
}

func (t *LockTable) next() (queueItem, bool) {
	for {
		t.mu.Lock()
		if len(t.queue) > 0 {
			item := t.queue[0]
			t.queue = t.queue[1:]
			if item.kind == itemEvent {
				t.events--
			}
			t.mu.Unlock()
			return item, true
		}
		if t.closed {
			t.mu.Unlock()
			return queueItem{}, false
		}
		t.mu.Unlock()
		<-t.notify
	}
}

func (t *LockTable) run() {
	defer close(t.done)
	for {
		item, ok := t.next()
		if !ok {
			return
		}
		switch item.kind {
		case itemRegister:
			t.listeners = append(t.listeners, item.listener)
			t.invoke(item.listener, "Registered", item.listener.Registered)
		case itemDeregister:
			for i, l := range t.listeners {
				if l == item.listener {
					t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
					break
				}
			}
			t.invoke(item.listener, "Unregistered", item.listener.Unregistered)
		case itemEvent:
			for _, l := range t.listeners {
				event := item.event
				t.invoke(l, "Accept", func() { l.Accept(event) })
			}
		}
	}
}

// invoke calls a listener callback, absorbing panics so that one faulty
// listener cannot disturb the others or kill the dispatcher.
func (t *LockTable) invoke(l EventListener, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ListenerFaultsTotal.Inc()
			t.log.Errorf("listener %T panicked in %s: %v", l, name, r)
		}
	}()
	fn()
}

func (t *LockTable) updateLedger(id string, mode Mode, action ActionType) {
	t.ledgerMu.Lock()
	defer t.ledgerMu.Unlock()
	switch action {
	case Attempt:
		c := t.attempting[id]
		c = addCount(c, mode, 1)
		t.attempting[id] = c
	case Acquired:
		setOrDelete(t.attempting, id, addCount(t.attempting[id], mode, -1))
		t.held[id] = addCount(t.held[id], mode, 1)
	case Failed:
		setOrDelete(t.attempting, id, addCount(t.attempting[id], mode, -1))
	case Released:
		setOrDelete(t.held, id, addCount(t.held[id], mode, -1))
	}
}

func addCount(c LockCounts, mode Mode, delta int) LockCounts {
	switch mode {
	case ReadLock:
		c.Read += delta
		if c.Read < 0 {
			c.Read = 0
		}
	case WriteLock:
		c.Write += delta
		if c.Write < 0 {
			c.Write = 0
		}
	}
	return c
}

func setOrDelete(m map[string]LockCounts, id string, c LockCounts) {
	if c.Read == 0 && c.Write == 0 {
		delete(m, id)
		return
	}
	m[id] = c
}
