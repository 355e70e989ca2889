package lock

// ActionType classifies lock table events.
type ActionType uint8

const (
	Attempt ActionType = iota
	Acquired
	Failed
	Released
)

// String returns the string representation of the action type
func (a ActionType) String() string {
	switch a {
	case Attempt:
		return "Attempt"
	case Acquired:
		return "Acquired"
	case Failed:
		return "Failed"
	case Released:
		return "Released"
	default:
		return "UNKNOWN"
	}
}

// LockAction is an immutable record of one lock table event. ID is the
// collection or document path the event refers to. GroupID correlates the
// events emitted for one logical acquisition. Thread is the id of the
// goroutine that issued the event. Reason is only set on Failed actions.
type LockAction struct {
	Action      ActionType
	ID          string
	Mode        Mode
	Thread      int64
	TimestampNS uint64
	GroupID     uint64
	Reason      string
}

// EventListener observes the lock table event stream. Registered and
// Unregistered are invoked on the dispatcher goroutine once the listener has
// been inserted into or removed from the registry; both are asynchronous
// with respect to RegisterListener/DeregisterListener. Accept is invoked on
// the dispatcher goroutine for every event, in enqueue order. Listeners must
// not block the dispatcher indefinitely.
type EventListener interface {
	Registered()
	Unregistered()
	Accept(action LockAction)
}
