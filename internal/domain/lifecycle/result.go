package lifecycle

import "github.com/ahrav/adt-armada/internal/domain/fault"

// FinalState summarizes the outcome of a completed lifecycle run from
// the caller's point of view.
type FinalState string

const (
	// FinalStateCreated indicates the object was created but not
	// activated.
	FinalStateCreated FinalState = "CREATED"

	// FinalStateUpdated indicates an existing object's content was
	// replaced.
	FinalStateUpdated FinalState = "UPDATED"

	// FinalStateActivated indicates the object was created or updated
	// and activated.
	FinalStateActivated FinalState = "ACTIVATED"

	// FinalStateDeleted indicates the object was removed.
	FinalStateDeleted FinalState = "DELETED"

	// FinalStateAborted indicates the run failed and rollback was
	// attempted.
	FinalStateAborted FinalState = "ABORTED"
)

// String returns the string representation of the FinalState.
func (s FinalState) String() string { return string(s) }

// Result is what a lifecycle run returns to its caller: the outcome,
// every fault encountered along the way in order, and the side-effect
// flags the caller needs to decide cleanup actions.
type Result struct {
	finalState FinalState
	faults     []fault.Classification
	created    bool
	locked     bool
}

// FinalState returns the run outcome.
func (r Result) FinalState() FinalState { return r.finalState }

// Faults returns every classified failure the run encountered, in
// occurrence order. The first entry is the triggering failure; later
// entries come from rollback steps.
func (r Result) Faults() []fault.Classification {
	if r.faults == nil {
		return nil
	}
	out := make([]fault.Classification, len(r.faults))
	copy(out, r.faults)
	return out
}

// FirstFault returns the triggering failure of an aborted run.
func (r Result) FirstFault() (fault.Classification, bool) {
	if len(r.faults) == 0 {
		return fault.Classification{}, false
	}
	return r.faults[0], true
}

// Created reports whether the object still exists remotely as a result
// of this run. True after a successful create; false again once
// rollback or teardown deleted it.
func (r Result) Created() bool { return r.created }

// Locked reports whether the run may still hold the remote lock, which
// means a lock record is still registered and recovery applies.
func (r Result) Locked() bool { return r.locked }
