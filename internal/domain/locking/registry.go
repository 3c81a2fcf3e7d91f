package locking

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/adt-armada/internal/domain/object"
)

// ErrLockNotFound indicates no record exists for the requested
// identity. Recovery treats this as "nothing to release", not a fault.
var ErrLockNotFound = errors.New("lock record not found")

// ProcessProber reports whether a local process is still running. The
// registry uses it to decide when a record's owner has died and the
// record can be reclaimed.
//
// Implementations follow the conservative liveness rule: only a
// definitive "no such process" outcome counts as dead; every other
// outcome, including probe errors, counts as alive.
type ProcessProber interface {
	// Alive reports whether the process with the given pid exists.
	Alive(ctx context.Context, pid int) bool
}

// Registry persists lock records on a durable, process-external medium
// keyed by object identity. At most one record exists per identity; a
// new registration replaces any previous record for that key.
//
// Writes to distinct keys must not block each other. Cleanup may run
// concurrently with registration and removal; implementations must
// re-check staleness and liveness at the moment of removal so a record
// that was just re-registered is never reclaimed.
type Registry interface {
	// RegisterLock inserts or replaces the record for its identity.
	// The record must be durable before RegisterLock returns.
	RegisterLock(ctx context.Context, record *Record) error

	// GetLock returns the record for the given identity.
	// Returns ErrLockNotFound when none exists.
	GetLock(ctx context.Context, identity object.Identity) (*Record, error)

	// RemoveLock deletes the record for the given identity. Removing
	// an absent record is not an error.
	RemoveLock(ctx context.Context, identity object.Identity) error

	// List returns every registered record.
	List(ctx context.Context) ([]*Record, error)

	// ListStale returns records whose age exceeds maxAge.
	ListStale(ctx context.Context, maxAge time.Duration) ([]*Record, error)

	// ListDead returns records whose owning process is no longer
	// alive.
	ListDead(ctx context.Context) ([]*Record, error)

	// Cleanup removes the union of stale and dead records and returns
	// what was removed. A non-positive maxAge disables the age
	// criterion so only dead-owner records are reclaimed. Cleanup is
	// always safe to call: it never removes a record whose owner is
	// alive and within the age window.
	Cleanup(ctx context.Context, maxAge time.Duration) ([]*Record, error)
}
