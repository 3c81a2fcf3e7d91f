// Package session provides the domain model for stateful protocol
// sessions: the durable session material (cookies, CSRF token) a
// workflow accumulates while talking to the remote system, and the
// repository port used to persist it across process boundaries.
package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ahrav/adt-armada/pkg/common/timeutil"
)

// State holds the resumable material of one stateful session. The
// remote system ties lock ownership to the session that acquired it,
// so this material is what a recovering process needs to issue an
// unlock on behalf of a crashed workflow.
type State struct {
	id        string
	cookies   []byte
	csrfToken string
	createdAt time.Time

	timeProvider timeutil.Provider
}

// NewState creates session state for a fresh session id with no
// accumulated material yet.
func NewState(id string) *State {
	return NewStateWithTimeProvider(id, timeutil.Default())
}

// NewStateWithTimeProvider creates session state using the provided
// time provider. Primarily used in tests to control timestamps.
func NewStateWithTimeProvider(id string, tp timeutil.Provider) *State {
	return &State{
		id:           id,
		createdAt:    tp.Now(),
		timeProvider: tp,
	}
}

// ReconstructState creates session state from stored fields, bypassing
// creation invariants. This should only be used by repositories when
// loading persisted sessions.
func ReconstructState(id string, cookies []byte, csrfToken string, createdAt time.Time) *State {
	return &State{
		id:           id,
		cookies:      cookies,
		csrfToken:    csrfToken,
		createdAt:    createdAt,
		timeProvider: timeutil.Default(),
	}
}

// ID returns the session identifier.
func (s *State) ID() string { return s.id }

// Cookies returns a copy of the serialized cookie material.
func (s *State) Cookies() []byte {
	if s.cookies == nil {
		return nil
	}
	out := make([]byte, len(s.cookies))
	copy(out, s.cookies)
	return out
}

// CSRFToken returns the last token obtained from the remote system,
// or "" when none has been fetched yet.
func (s *State) CSRFToken() string { return s.csrfToken }

// CreatedAt returns when the session was established.
func (s *State) CreatedAt() time.Time { return s.createdAt }

// Age returns how long the session has existed.
func (s *State) Age() time.Duration { return s.timeProvider.Now().Sub(s.createdAt) }

// UpdateCookies replaces the serialized cookie material after a
// response mutated the cookie jar.
func (s *State) UpdateCookies(cookies []byte) {
	if cookies == nil {
		s.cookies = nil
		return
	}
	s.cookies = make([]byte, len(cookies))
	copy(s.cookies, cookies)
}

// RefreshCSRFToken records a newly fetched CSRF token.
func (s *State) RefreshCSRFToken(token string) { s.csrfToken = token }

// MarshalJSON serializes the session state into its persisted form.
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID        string    `json:"session_id"`
		Cookies   []byte    `json:"cookies,omitempty"`
		CSRFToken string    `json:"csrf_token,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}{
		ID:        s.id,
		Cookies:   s.cookies,
		CSRFToken: s.csrfToken,
		CreatedAt: s.createdAt,
	})
}

// UnmarshalJSON restores session state from its persisted form.
func (s *State) UnmarshalJSON(data []byte) error {
	aux := struct {
		ID        string    `json:"session_id"`
		Cookies   []byte    `json:"cookies,omitempty"`
		CSRFToken string    `json:"csrf_token,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}{}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal session state: %w", err)
	}

	s.id = aux.ID
	s.cookies = aux.Cookies
	s.csrfToken = aux.CSRFToken
	s.createdAt = aux.CreatedAt
	s.timeProvider = timeutil.Default()
	return nil
}
