package protocol

import "time"

// Operation identifies one kind of remote call. Operations key the
// per-call timeouts and label metrics and spans.
type Operation string

const (
	// OpValidate checks an object definition before creation.
	OpValidate Operation = "validate"

	// OpCreate registers the empty object.
	OpCreate Operation = "create"

	// OpLock acquires the object lock.
	OpLock Operation = "lock"

	// OpUpdate writes the object's full content.
	OpUpdate Operation = "update"

	// OpCheck runs the syntax/consistency check.
	OpCheck Operation = "check"

	// OpUnlock releases the object lock.
	OpUnlock Operation = "unlock"

	// OpActivate activates the inactive version.
	OpActivate Operation = "activate"

	// OpRead reads the object back.
	OpRead Operation = "read"

	// OpDelete removes the object.
	OpDelete Operation = "delete"
)

// String returns the string representation of the Operation.
func (o Operation) String() string { return string(o) }

// Timeouts carries the per-operation network timeouts. Every call the
// lifecycle machinery issues is bounded by the timeout of its
// operation; on expiry the call fails like any other mid-workflow
// failure, with no automatic retry.
type Timeouts struct {
	Validate time.Duration
	Create   time.Duration
	Lock     time.Duration
	Update   time.Duration
	Check    time.Duration
	Unlock   time.Duration
	Activate time.Duration
	Read     time.Duration
	Delete   time.Duration
}

// DefaultTimeouts returns the stock per-operation timeouts. Activation
// gets the widest bound because the server compiles dependents inside
// the call; lock and unlock stay tight so a wedged session surfaces
// quickly.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Validate: 15 * time.Second,
		Create:   30 * time.Second,
		Lock:     10 * time.Second,
		Update:   60 * time.Second,
		Check:    30 * time.Second,
		Unlock:   10 * time.Second,
		Activate: 120 * time.Second,
		Read:     30 * time.Second,
		Delete:   30 * time.Second,
	}
}

// For returns the timeout for the given operation, or zero for an
// unknown operation so the connection default applies.
func (t Timeouts) For(op Operation) time.Duration {
	switch op {
	case OpValidate:
		return t.Validate
	case OpCreate:
		return t.Create
	case OpLock:
		return t.Lock
	case OpUpdate:
		return t.Update
	case OpCheck:
		return t.Check
	case OpUnlock:
		return t.Unlock
	case OpActivate:
		return t.Activate
	case OpRead:
		return t.Read
	case OpDelete:
		return t.Delete
	default:
		return 0
	}
}
