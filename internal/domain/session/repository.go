package session

import (
	"context"
	"errors"
)

// ErrNoSessionState indicates no persisted state exists for the
// requested session id. Callers distinguish this from storage failures
// because a missing session is an expected outcome during recovery, not
// a fault.
var ErrNoSessionState = errors.New("no state found for session")

// Repository persists session state on a durable, process-external
// medium so a second process can restore material saved by a first.
// Implementations must allow concurrent writers to distinct session
// ids without interference; writers to the same id may race, in which
// case the last write wins.
type Repository interface {
	// Save persists the session state, replacing any previous state
	// for the same id. The state must be durable before Save returns.
	Save(ctx context.Context, state *State) error

	// Load restores the state for the given session id.
	// Returns ErrNoSessionState when none exists.
	Load(ctx context.Context, sessionID string) (*State, error)

	// Delete removes the state for the given session id. Deleting a
	// session that does not exist is not an error.
	Delete(ctx context.Context, sessionID string) error
}
