// Package fs provides the filesystem-backed lock registry: a single
// JSON document holding an ordered list of lock records, written
// atomically so it is always a well-formed file an operator can
// inspect or hand-edit during recovery.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/adt-armada/internal/domain/locking"
	"github.com/ahrav/adt-armada/internal/domain/object"
	"github.com/ahrav/adt-armada/internal/infra/storage"
	"github.com/ahrav/adt-armada/pkg/common/timeutil"
)

// lockRegistry implements locking.Registry on the local filesystem.
// Every operation re-reads the document under the registry mutex, so
// cleanup decisions are always made against current state rather than
// a stale snapshot.
var _ locking.Registry = (*lockRegistry)(nil)

type lockRegistry struct {
	path         string
	prober       locking.ProcessProber
	tracer       trace.Tracer
	timeProvider timeutil.Provider

	// mu serializes read-modify-write cycles on the document.
	mu sync.Mutex
}

// NewLockRegistry creates a registry persisting to the given file,
// creating the parent directory if needed.
func NewLockRegistry(path string, prober locking.ProcessProber, tracer trace.Tracer) (*lockRegistry, error) {
	return NewLockRegistryWithTimeProvider(path, prober, tracer, timeutil.Default())
}

// NewLockRegistryWithTimeProvider creates a registry using the provided
// time provider. Primarily used in tests to control staleness.
func NewLockRegistryWithTimeProvider(
	path string,
	prober locking.ProcessProber,
	tracer trace.Tracer,
	tp timeutil.Provider,
) (*lockRegistry, error) {
	if prober == nil {
		return nil, fmt.Errorf("lock registry requires a process prober")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create lock registry directory: %w", err)
	}

	return &lockRegistry{
		path:         path,
		prober:       prober,
		tracer:       tracer,
		timeProvider: tp,
	}, nil
}

// defaultFSAttributes defines standard OpenTelemetry attributes for
// filesystem store operations.
var defaultFSAttributes = []attribute.KeyValue{
	attribute.String("store.system", "filesystem"),
}

// RegisterLock inserts or replaces the record for its identity key and
// persists the document before returning.
func (r *lockRegistry) RegisterLock(ctx context.Context, record *locking.Record) error {
	attrs := append(
		defaultFSAttributes,
		attribute.String("object_key", record.Key()),
		attribute.String("session_id", record.SessionID()),
		attribute.String("owner_pid", strconv.Itoa(record.OwnerPID())),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "fs.register_lock", attrs, func(ctx context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		records, err := r.load()
		if err != nil {
			return err
		}

		// A new acquisition replaces any previous record for the key.
		kept := make([]*locking.Record, 0, len(records)+1)
		for _, rec := range records {
			if rec.Key() != record.Key() {
				kept = append(kept, rec)
			}
		}
		kept = append(kept, record)

		return r.persist(kept)
	})
}

// GetLock returns the record for the given identity.
func (r *lockRegistry) GetLock(ctx context.Context, identity object.Identity) (*locking.Record, error) {
	attrs := append(defaultFSAttributes, attribute.String("object_key", identity.Key()))

	var found *locking.Record
	err := storage.ExecuteAndTrace(ctx, r.tracer, "fs.get_lock", attrs, func(ctx context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		records, err := r.load()
		if err != nil {
			return err
		}

		for _, rec := range records {
			if rec.Key() == identity.Key() {
				found = rec
				return nil
			}
		}
		return fmt.Errorf("%w: %s", locking.ErrLockNotFound, identity)
	})
	if err != nil {
		return nil, err
	}

	return found, nil
}

// RemoveLock deletes the record for the given identity. Removing an
// absent record is not an error.
func (r *lockRegistry) RemoveLock(ctx context.Context, identity object.Identity) error {
	attrs := append(defaultFSAttributes, attribute.String("object_key", identity.Key()))

	return storage.ExecuteAndTrace(ctx, r.tracer, "fs.remove_lock", attrs, func(ctx context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		records, err := r.load()
		if err != nil {
			return err
		}

		kept := records[:0]
		for _, rec := range records {
			if rec.Key() != identity.Key() {
				kept = append(kept, rec)
			}
		}
		if len(kept) == len(records) {
			return nil
		}

		return r.persist(kept)
	})
}

// List returns every registered record in document order.
func (r *lockRegistry) List(ctx context.Context) ([]*locking.Record, error) {
	var records []*locking.Record
	err := storage.ExecuteAndTrace(ctx, r.tracer, "fs.list_locks", defaultFSAttributes, func(ctx context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		var err error
		records, err = r.load()
		return err
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// ListStale returns records whose age exceeds maxAge.
func (r *lockRegistry) ListStale(ctx context.Context, maxAge time.Duration) ([]*locking.Record, error) {
	attrs := append(defaultFSAttributes, attribute.String("max_age", maxAge.String()))

	var stale []*locking.Record
	err := storage.ExecuteAndTrace(ctx, r.tracer, "fs.list_stale_locks", attrs, func(ctx context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		records, err := r.load()
		if err != nil {
			return err
		}

		now := r.timeProvider.Now()
		for _, rec := range records {
			if rec.IsStale(now, maxAge) {
				stale = append(stale, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return stale, nil
}

// ListDead returns records whose owning process is no longer alive.
func (r *lockRegistry) ListDead(ctx context.Context) ([]*locking.Record, error) {
	var dead []*locking.Record
	err := storage.ExecuteAndTrace(ctx, r.tracer, "fs.list_dead_locks", defaultFSAttributes, func(ctx context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		records, err := r.load()
		if err != nil {
			return err
		}

		for _, rec := range records {
			if !r.prober.Alive(ctx, rec.OwnerPID()) {
				dead = append(dead, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return dead, nil
}

// Cleanup removes the union of stale and dead records and returns what
// was removed. Liveness and age are evaluated per record at removal
// time, under the same mutex registrations take, so a record that was
// just re-registered is never reclaimed.
func (r *lockRegistry) Cleanup(ctx context.Context, maxAge time.Duration) ([]*locking.Record, error) {
	attrs := append(defaultFSAttributes, attribute.String("max_age", maxAge.String()))

	var removed []*locking.Record
	err := storage.ExecuteAndTrace(ctx, r.tracer, "fs.cleanup_locks", attrs, func(ctx context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		records, err := r.load()
		if err != nil {
			return err
		}

		kept := make([]*locking.Record, 0, len(records))
		for _, rec := range records {
			stale := rec.IsStale(r.timeProvider.Now(), maxAge)
			dead := !r.prober.Alive(ctx, rec.OwnerPID())
			if stale || dead {
				removed = append(removed, rec)
				continue
			}
			kept = append(kept, rec)
		}
		if len(removed) == 0 {
			return nil
		}

		return r.persist(kept)
	})
	if err != nil {
		return nil, err
	}

	return removed, nil
}

// load reads the whole document. A missing or empty file is an empty
// registry.
func (r *lockRegistry) load() ([]*locking.Record, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lock registry: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var records []*locking.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode lock registry %s: %w", r.path, err)
	}
	return records, nil
}

// persist writes the whole document atomically. An empty registry is
// written as an empty list so the file stays a valid document.
func (r *lockRegistry) persist(records []*locking.Record) error {
	if records == nil {
		records = []*locking.Record{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock registry: %w", err)
	}
	return storage.WriteFileAtomic(r.path, data)
}
