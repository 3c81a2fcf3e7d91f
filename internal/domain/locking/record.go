// Package locking provides the domain model for durable lock
// ownership: the lock record persisted when a remote lock is acquired,
// and the registry port that keeps those records on a process-external
// medium so they survive crashes.
//
// A registry entry means "this process may still hold a remote lock".
// Records are written before any step that could crash while the lock
// is held and removed only after the remote unlock is confirmed, which
// is what makes crash recovery possible.
package locking

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ahrav/adt-armada/internal/domain/object"
	"github.com/ahrav/adt-armada/pkg/common/timeutil"
)

// Record validation errors.
var (
	// ErrNoIdentity indicates a record was constructed without an
	// object identity.
	ErrNoIdentity = errors.New("lock record requires an object identity")

	// ErrNoSession indicates a record was constructed without the
	// owning session id.
	ErrNoSession = errors.New("lock record requires a session id")

	// ErrNoHandle indicates a record was constructed without the
	// server-issued lock handle.
	ErrNoHandle = errors.New("lock record requires a lock handle")

	// ErrNoOwner indicates a record was constructed without a valid
	// owning process id.
	ErrNoOwner = errors.New("lock record requires an owner process id")
)

// Record captures ownership of one remote lock: which object is
// locked, which session acquired it, the server-issued handle needed
// to release it, and which local process was driving the workflow.
type Record struct {
	identity    object.Identity
	sessionID   string
	lockHandle  string
	ownerPID    int
	originToken string
	createdAt   time.Time
}

// NewRecord creates a lock record for a freshly acquired lock.
func NewRecord(identity object.Identity, sessionID, lockHandle string, ownerPID int) (*Record, error) {
	return NewRecordWithTimeProvider(identity, sessionID, lockHandle, ownerPID, timeutil.Default())
}

// NewRecordWithTimeProvider creates a lock record using the provided
// time provider. Primarily used in tests to control timestamps.
func NewRecordWithTimeProvider(
	identity object.Identity,
	sessionID, lockHandle string,
	ownerPID int,
	tp timeutil.Provider,
) (*Record, error) {
	if identity.IsZero() {
		return nil, ErrNoIdentity
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, identity)
	}
	if lockHandle == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoHandle, identity)
	}
	if ownerPID <= 0 {
		return nil, fmt.Errorf("%w: %s (pid %d)", ErrNoOwner, identity, ownerPID)
	}

	return &Record{
		identity:   identity,
		sessionID:  sessionID,
		lockHandle: lockHandle,
		ownerPID:   ownerPID,
		createdAt:  tp.Now(),
	}, nil
}

// ReconstructRecord creates a lock record from stored fields, bypassing
// creation invariants. This should only be used by registries when
// loading persisted records.
func ReconstructRecord(
	identity object.Identity,
	sessionID, lockHandle string,
	ownerPID int,
	originToken string,
	createdAt time.Time,
) *Record {
	return &Record{
		identity:    identity,
		sessionID:   sessionID,
		lockHandle:  lockHandle,
		ownerPID:    ownerPID,
		originToken: originToken,
		createdAt:   createdAt,
	}
}

// Identity returns the locked object's identity.
func (r *Record) Identity() object.Identity { return r.identity }

// Key returns the registry uniqueness key, derived from the identity.
func (r *Record) Key() string { return r.identity.Key() }

// SessionID returns the id of the session that acquired the lock. The
// remote system ties the lock to this session, so recovery must present
// the same session when releasing it.
func (r *Record) SessionID() string { return r.sessionID }

// LockHandle returns the server-issued handle required by the unlock
// call.
func (r *Record) LockHandle() string { return r.lockHandle }

// OwnerPID returns the id of the process that acquired the lock.
func (r *Record) OwnerPID() int { return r.ownerPID }

// OriginToken returns the optional token some deployments issue
// alongside the handle, or "" when absent.
func (r *Record) OriginToken() string { return r.originToken }

// SetOriginToken records the token issued with the lock response.
func (r *Record) SetOriginToken(token string) { r.originToken = token }

// CreatedAt returns when the lock was acquired.
func (r *Record) CreatedAt() time.Time { return r.createdAt }

// IsStale reports whether the record's age exceeds maxAge at the given
// instant. A non-positive maxAge disables age-based staleness.
func (r *Record) IsStale(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	return now.Sub(r.createdAt) > maxAge
}

// MarshalJSON serializes the record into its persisted form. The
// registry file is meant to be operator-readable, so field names stay
// stable and descriptive.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ObjectType  string    `json:"object_type"`
		ObjectName  string    `json:"object_name"`
		SubGroup    string    `json:"sub_group,omitempty"`
		SessionID   string    `json:"session_id"`
		LockHandle  string    `json:"lock_handle"`
		OwnerPID    int       `json:"owner_pid"`
		OriginToken string    `json:"origin_token,omitempty"`
		CreatedAt   time.Time `json:"created_at"`
	}{
		ObjectType:  r.identity.Type().String(),
		ObjectName:  r.identity.Name(),
		SubGroup:    r.identity.SubGroup(),
		SessionID:   r.sessionID,
		LockHandle:  r.lockHandle,
		OwnerPID:    r.ownerPID,
		OriginToken: r.originToken,
		CreatedAt:   r.createdAt,
	})
}

// UnmarshalJSON restores a record from its persisted form.
func (r *Record) UnmarshalJSON(data []byte) error {
	aux := struct {
		ObjectType  string    `json:"object_type"`
		ObjectName  string    `json:"object_name"`
		SubGroup    string    `json:"sub_group,omitempty"`
		SessionID   string    `json:"session_id"`
		LockHandle  string    `json:"lock_handle"`
		OwnerPID    int       `json:"owner_pid"`
		OriginToken string    `json:"origin_token,omitempty"`
		CreatedAt   time.Time `json:"created_at"`
	}{}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal lock record: %w", err)
	}

	identity, err := object.NewGroupedIdentity(object.Type(aux.ObjectType), aux.ObjectName, aux.SubGroup)
	if err != nil {
		return fmt.Errorf("failed to unmarshal lock record identity: %w", err)
	}

	r.identity = identity
	r.sessionID = aux.SessionID
	r.lockHandle = aux.LockHandle
	r.ownerPID = aux.OwnerPID
	r.originToken = aux.OriginToken
	r.createdAt = aux.CreatedAt
	return nil
}
