// Package memory provides an in-memory implementation of the session
// repository for testing and development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ahrav/adt-armada/internal/domain/session"
)

// SessionStore provides an in-memory implementation of
// session.Repository. State is deep-copied on the way in and out so
// callers never share mutable state with the store.
var _ session.Repository = (*SessionStore)(nil)

type SessionStore struct {
	mu     sync.Mutex
	states map[string]*session.State
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{states: make(map[string]*session.State)}
}

// Save persists the session state, replacing any previous state for
// the same id.
func (s *SessionStore) Save(ctx context.Context, state *session.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[state.ID()] = session.ReconstructState(
		state.ID(),
		state.Cookies(),
		state.CSRFToken(),
		state.CreatedAt(),
	)
	return nil
}

// Load retrieves the state for a session id.
func (s *SessionStore) Load(ctx context.Context, sessionID string) (*session.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, exists := s.states[sessionID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", session.ErrNoSessionState, sessionID)
	}

	return session.ReconstructState(
		state.ID(),
		state.Cookies(),
		state.CSRFToken(),
		state.CreatedAt(),
	), nil
}

// Delete removes the state for a session id.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, sessionID)
	return nil
}
