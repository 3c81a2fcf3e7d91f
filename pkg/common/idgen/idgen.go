// Package idgen generates the opaque identifiers the stateful protocol
// requires: one connection-scoped session id per workflow and one unique
// request id per call. Both are UUIDv4 strings (crypto/rand backed, 122
// random bits), so reuse within a process lifetime is not a practical
// concern. A short prefix distinguishes the two kinds in logs and in the
// lock registry file.
package idgen

import "github.com/google/uuid"

const (
	sessionPrefix = "s-"
	requestPrefix = "r-"
)

// NewSessionID returns a fresh connection-scoped session identifier.
func NewSessionID() string { return sessionPrefix + uuid.NewString() }

// NewRequestID returns a fresh per-call request identifier.
func NewRequestID() string { return requestPrefix + uuid.NewString() }
