// Package lifecycle provides the domain model for object lifecycle
// runs: the state machine every object type walks through, the run
// entity that enforces it, and the result returned to callers.
package lifecycle

import "fmt"

// State represents the position of a lifecycle run within the object
// workflow. It enables precise tracking of how far a run progressed,
// which is what rollback and crash recovery key off.
type State string

const (
	// StateIdle indicates a run has been constructed but no remote
	// call has been made yet.
	StateIdle State = "IDLE"

	// StateValidated indicates the remote system accepted the object
	// definition without error-severity findings.
	StateValidated State = "VALIDATED"

	// StateCreated indicates the empty object now exists remotely.
	// From here on a failed run owes a best-effort delete.
	StateCreated State = "CREATED"

	// StateLocked indicates the run holds the remote lock and the
	// lock record has been registered.
	StateLocked State = "LOCKED"

	// StatePopulated indicates the object's full content was written.
	StatePopulated State = "POPULATED"

	// StateChecked indicates the syntax check of the inactive version
	// passed without errors.
	StateChecked State = "CHECKED"

	// StateUnlocked indicates the remote lock was released and the
	// lock record removed.
	StateUnlocked State = "UNLOCKED"

	// StateActivated indicates the object was activated.
	StateActivated State = "ACTIVATED"

	// StateVerified indicates the re-read confirmed the written
	// content round-tripped. Terminal success state.
	StateVerified State = "VERIFIED"

	// StateAborted indicates the run stopped on a failure after
	// rollback was attempted. Terminal.
	StateAborted State = "ABORTED"

	// StateDeleted indicates the object was removed remotely on
	// explicit teardown. Terminal.
	StateDeleted State = "DELETED"
)

// String returns the string representation of the State.
func (s State) String() string { return string(s) }

// IsTerminal reports whether no further transitions are allowed.
func (s State) IsTerminal() bool {
	return s == StateVerified || s == StateAborted || s == StateDeleted
}

// validateTransition checks if a state transition is valid and returns
// an error if not.
func (s State) validateTransition(target State) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid lifecycle transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition checks if the current state can transition to the
// target state. It enforces the workflow ordering: creation walks the
// full chain, updates skip StateCreated, deletion branches off while
// the lock is held, and any non-terminal state may abort.
func (s State) isValidTransition(target State) bool {
	if target == StateAborted {
		return !s.IsTerminal()
	}

	switch s {
	case StateIdle:
		// Validation is the usual first step; deletion of an existing
		// object locks straight away.
		return target == StateValidated || target == StateLocked
	case StateValidated:
		// Creation registers the object first; updates lock the
		// existing one directly.
		return target == StateCreated || target == StateLocked
	case StateCreated:
		return target == StateLocked || target == StateDeleted
	case StateLocked:
		// Deletion happens under the lock; unlock without populate
		// covers rollback of a freshly created object.
		return target == StatePopulated || target == StateDeleted || target == StateUnlocked
	case StatePopulated:
		// The check step can be skipped by configuration.
		return target == StateChecked || target == StateUnlocked
	case StateChecked:
		return target == StateUnlocked
	case StateUnlocked:
		// Activation is optional; a run may also end here.
		return target == StateActivated || target == StateDeleted
	case StateActivated:
		return target == StateVerified
	case StateVerified, StateAborted, StateDeleted:
		// Terminal states - no further transitions allowed.
		return false
	default:
		return false
	}
}
