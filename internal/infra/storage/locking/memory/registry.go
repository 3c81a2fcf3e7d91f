// Package memory provides an in-memory implementation of the lock
// registry for testing and development.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ahrav/adt-armada/internal/domain/locking"
	"github.com/ahrav/adt-armada/internal/domain/object"
	"github.com/ahrav/adt-armada/pkg/common/timeutil"
)

// LockRegistry provides an in-memory implementation of
// locking.Registry. Records keep their registration order, matching
// the ordered document the filesystem registry persists.
var _ locking.Registry = (*LockRegistry)(nil)

type LockRegistry struct {
	mu           sync.Mutex
	records      []*locking.Record
	prober       locking.ProcessProber
	timeProvider timeutil.Provider
}

// NewLockRegistry creates a new in-memory lock registry.
func NewLockRegistry(prober locking.ProcessProber) *LockRegistry {
	return NewLockRegistryWithTimeProvider(prober, timeutil.Default())
}

// NewLockRegistryWithTimeProvider creates a registry using the
// provided time provider. Primarily used in tests to control
// staleness.
func NewLockRegistryWithTimeProvider(prober locking.ProcessProber, tp timeutil.Provider) *LockRegistry {
	return &LockRegistry{prober: prober, timeProvider: tp}
}

// RegisterLock inserts or replaces the record for its identity key.
func (r *LockRegistry) RegisterLock(ctx context.Context, record *locking.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := make([]*locking.Record, 0, len(r.records)+1)
	for _, rec := range r.records {
		if rec.Key() != record.Key() {
			kept = append(kept, rec)
		}
	}
	r.records = append(kept, copyRecord(record))
	return nil
}

// GetLock returns the record for the given identity.
func (r *LockRegistry) GetLock(ctx context.Context, identity object.Identity) (*locking.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.records {
		if rec.Key() == identity.Key() {
			return copyRecord(rec), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", locking.ErrLockNotFound, identity)
}

// RemoveLock deletes the record for the given identity.
func (r *LockRegistry) RemoveLock(ctx context.Context, identity object.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.records[:0]
	for _, rec := range r.records {
		if rec.Key() != identity.Key() {
			kept = append(kept, rec)
		}
	}
	r.records = kept
	return nil
}

// List returns every registered record in registration order.
func (r *LockRegistry) List(ctx context.Context) ([]*locking.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make([]*locking.Record, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, copyRecord(rec))
	}
	return records, nil
}

// ListStale returns records whose age exceeds maxAge.
func (r *LockRegistry) ListStale(ctx context.Context, maxAge time.Duration) ([]*locking.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.timeProvider.Now()
	var stale []*locking.Record
	for _, rec := range r.records {
		if rec.IsStale(now, maxAge) {
			stale = append(stale, copyRecord(rec))
		}
	}
	return stale, nil
}

// ListDead returns records whose owning process is no longer alive.
func (r *LockRegistry) ListDead(ctx context.Context) ([]*locking.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var dead []*locking.Record
	for _, rec := range r.records {
		if !r.prober.Alive(ctx, rec.OwnerPID()) {
			dead = append(dead, copyRecord(rec))
		}
	}
	return dead, nil
}

// Cleanup removes the union of stale and dead records, re-checking
// each record at the moment of the decision.
func (r *LockRegistry) Cleanup(ctx context.Context, maxAge time.Duration) ([]*locking.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []*locking.Record
	kept := make([]*locking.Record, 0, len(r.records))
	for _, rec := range r.records {
		stale := rec.IsStale(r.timeProvider.Now(), maxAge)
		dead := !r.prober.Alive(ctx, rec.OwnerPID())
		if stale || dead {
			removed = append(removed, copyRecord(rec))
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return removed, nil
}

func copyRecord(rec *locking.Record) *locking.Record {
	return locking.ReconstructRecord(
		rec.Identity(),
		rec.SessionID(),
		rec.LockHandle(),
		rec.OwnerPID(),
		rec.OriginToken(),
		rec.CreatedAt(),
	)
}
