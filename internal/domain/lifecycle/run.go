package lifecycle

import (
	"github.com/ahrav/adt-armada/internal/domain/fault"
	"github.com/ahrav/adt-armada/internal/domain/object"
)

// Run tracks one object's walk through the lifecycle state machine:
// the current state, the session bound to the run, and the remote
// side effects (object created, lock held) that rollback and the
// final result depend on.
//
// A Run is confined to the single goroutine driving the workflow; it
// is not safe for concurrent use.
type Run struct {
	identity   object.Identity
	sessionID  string
	lockHandle string
	state      State
	created    bool
	locked     bool
	faults     []fault.Classification
}

// NewRun creates a run for the given object, starting at StateIdle.
func NewRun(identity object.Identity) *Run {
	return &Run{identity: identity, state: StateIdle}
}

// Identity returns the object the run operates on.
func (r *Run) Identity() object.Identity { return r.identity }

// State returns the run's current lifecycle state.
func (r *Run) State() State { return r.state }

// SessionID returns the session bound to this run, or "" before a
// session was bound.
func (r *Run) SessionID() string { return r.sessionID }

// LockHandle returns the server-issued lock handle, or "" while no
// lock is held.
func (r *Run) LockHandle() string { return r.lockHandle }

// Created reports whether the object currently exists remotely because
// of this run.
func (r *Run) Created() bool { return r.created }

// Locked reports whether the run currently holds the remote lock.
func (r *Run) Locked() bool { return r.locked }

// BindSession attaches the session id the run performs its stateful
// calls under. A run keeps one session for its whole lifetime because
// the remote system ties lock ownership to the acquiring session.
func (r *Run) BindSession(sessionID string) { r.sessionID = sessionID }

// TransitionTo advances the run to the target state, enforcing the
// workflow ordering and maintaining the side-effect flags:
// reaching StateCreated marks the object as existing, StateLocked
// marks the lock as held, StateUnlocked releases it, and StateDeleted
// clears both.
func (r *Run) TransitionTo(target State) error {
	if err := r.state.validateTransition(target); err != nil {
		return err
	}

	switch target {
	case StateCreated:
		r.created = true
	case StateLocked:
		r.locked = true
	case StateUnlocked:
		r.locked = false
		r.lockHandle = ""
	case StateDeleted:
		r.created = false
		r.locked = false
		r.lockHandle = ""
	}

	r.state = target
	return nil
}

// RecordLockHandle stores the handle issued by a successful lock call.
func (r *Run) RecordLockHandle(handle string) { r.lockHandle = handle }

// MarkUnlocked clears the lock flags outside a state transition. Used
// by rollback, which releases the lock while moving to StateAborted
// rather than through StateUnlocked.
func (r *Run) MarkUnlocked() {
	r.locked = false
	r.lockHandle = ""
}

// MarkDeleted clears the created flag outside a state transition. Used
// by rollback after a best-effort delete succeeded.
func (r *Run) MarkDeleted() { r.created = false }

// RecordFault appends a classified failure to the run's ordered fault
// list.
func (r *Run) RecordFault(c fault.Classification) { r.faults = append(r.faults, c) }

// Faults returns the classified failures recorded so far, in order.
func (r *Run) Faults() []fault.Classification {
	if r.faults == nil {
		return nil
	}
	out := make([]fault.Classification, len(r.faults))
	copy(out, r.faults)
	return out
}

// Finalize produces the caller-facing result for the run's outcome.
func (r *Run) Finalize(final FinalState) Result {
	return Result{
		finalState: final,
		faults:     r.Faults(),
		created:    r.created,
		locked:     r.locked,
	}
}
