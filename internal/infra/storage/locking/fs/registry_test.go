package fs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/adt-armada/internal/domain/locking"
	"github.com/ahrav/adt-armada/internal/domain/object"
	"github.com/ahrav/adt-armada/internal/infra/storage"
	"github.com/ahrav/adt-armada/pkg/common/timeutil"
)

// fakeProber reports every pid alive unless listed dead.
type fakeProber struct{ dead map[int]bool }

func (p *fakeProber) Alive(_ context.Context, pid int) bool { return !p.dead[pid] }

func newTestRegistry(t *testing.T, prober locking.ProcessProber, tp timeutil.Provider) (*lockRegistry, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "locks.json")
	reg, err := NewLockRegistryWithTimeProvider(path, prober, storage.NoOpTracer(), tp)
	require.NoError(t, err)
	return reg, path
}

func widgetIdentity(t *testing.T, name string) object.Identity {
	t.Helper()

	id, err := object.NewIdentity(object.Type("widget"), name)
	require.NoError(t, err)
	return id
}

func TestLockRegistryRegisterGetRemove(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(t, &fakeProber{}, timeutil.Default())
	ctx := context.Background()
	identity := widgetIdentity(t, "Z_TEST_1")

	rec, err := locking.NewRecord(identity, "s-abc", "L1", os.Getpid())
	require.NoError(t, err)
	require.NoError(t, reg.RegisterLock(ctx, rec))

	got, err := reg.GetLock(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, "L1", got.LockHandle())
	assert.Equal(t, "s-abc", got.SessionID())

	require.NoError(t, reg.RemoveLock(ctx, identity))
	_, err = reg.GetLock(ctx, identity)
	require.ErrorIs(t, err, locking.ErrLockNotFound)

	// Removing an absent record is not an error.
	require.NoError(t, reg.RemoveLock(ctx, identity))
}

func TestLockRegistryReplacesOnReregister(t *testing.T) {
	t.Parallel()

	reg, path := newTestRegistry(t, &fakeProber{}, timeutil.Default())
	ctx := context.Background()
	identity := widgetIdentity(t, "Z_TEST_1")

	first, err := locking.NewRecord(identity, "s-one", "L1", os.Getpid())
	require.NoError(t, err)
	require.NoError(t, reg.RegisterLock(ctx, first))

	second, err := locking.NewRecord(identity, "s-two", "L2", os.Getpid())
	require.NoError(t, err)
	require.NoError(t, reg.RegisterLock(ctx, second))

	got, err := reg.GetLock(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, "L2", got.LockHandle())
	assert.Equal(t, "s-two", got.SessionID())

	// Replacement, not accumulation: exactly one record per key.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var records []*locking.Record
	require.NoError(t, json.Unmarshal(data, &records))
	assert.Len(t, records, 1)
}

func TestLockRegistrySurvivesProcessBoundary(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "locks.json")
	ctx := context.Background()
	identity := widgetIdentity(t, "Z_TEST_1")

	first, err := NewLockRegistry(path, &fakeProber{}, storage.NoOpTracer())
	require.NoError(t, err)
	rec, err := locking.NewRecord(identity, "s-abc", "L1", os.Getpid())
	require.NoError(t, err)
	require.NoError(t, first.RegisterLock(ctx, rec))

	// A fresh registry on the same path stands in for the process that
	// recovers after a crash.
	second, err := NewLockRegistry(path, &fakeProber{}, storage.NoOpTracer())
	require.NoError(t, err)
	got, err := second.GetLock(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, "L1", got.LockHandle())
	assert.Equal(t, "s-abc", got.SessionID())
}

func TestLockRegistryList(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(t, &fakeProber{}, timeutil.Default())
	ctx := context.Background()

	records, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	first, err := locking.NewRecord(widgetIdentity(t, "Z_TEST_1"), "s-one", "L1", os.Getpid())
	require.NoError(t, err)
	require.NoError(t, reg.RegisterLock(ctx, first))
	second, err := locking.NewRecord(widgetIdentity(t, "Z_TEST_2"), "s-two", "L2", os.Getpid())
	require.NoError(t, err)
	require.NoError(t, reg.RegisterLock(ctx, second))

	records, err = reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "L1", records[0].LockHandle())
	assert.Equal(t, "L2", records[1].LockHandle())
}

func TestLockRegistryListStale(t *testing.T) {
	t.Parallel()

	mock := &timeutil.Mock{CurrentTime: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	reg, _ := newTestRegistry(t, &fakeProber{}, mock)
	ctx := context.Background()

	rec, err := locking.NewRecordWithTimeProvider(widgetIdentity(t, "Z_TEST_1"), "s-abc", "L1", os.Getpid(), mock)
	require.NoError(t, err)
	require.NoError(t, reg.RegisterLock(ctx, rec))

	mock.Advance(10 * time.Minute)

	stale, err := reg.ListStale(ctx, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "Z_TEST_1", stale[0].Identity().Name())

	stale, err = reg.ListStale(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, stale)

	// A non-positive window disables age staleness entirely.
	stale, err = reg.ListStale(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestLockRegistryListDead(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{dead: map[int]bool{2222: true}}
	reg, _ := newTestRegistry(t, prober, timeutil.Default())
	ctx := context.Background()

	alive, err := locking.NewRecord(widgetIdentity(t, "Z_ALIVE"), "s-one", "L1", 1111)
	require.NoError(t, err)
	deadRec, err := locking.NewRecord(widgetIdentity(t, "Z_DEAD"), "s-two", "L2", 2222)
	require.NoError(t, err)
	require.NoError(t, reg.RegisterLock(ctx, alive))
	require.NoError(t, reg.RegisterLock(ctx, deadRec))

	dead, err := reg.ListDead(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "Z_DEAD", dead[0].Identity().Name())
}

func TestLockRegistryCleanup(t *testing.T) {
	t.Parallel()

	mock := &timeutil.Mock{CurrentTime: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	prober := &fakeProber{dead: map[int]bool{2222: true}}
	reg, _ := newTestRegistry(t, prober, mock)
	ctx := context.Background()

	// An old record from a live process, a fresh record from a dead
	// process, and a fresh record from a live process.
	staleRec, err := locking.NewRecordWithTimeProvider(widgetIdentity(t, "Z_STALE"), "s-one", "L1", 1111, mock)
	require.NoError(t, err)
	require.NoError(t, reg.RegisterLock(ctx, staleRec))

	mock.Advance(10 * time.Minute)

	deadRec, err := locking.NewRecordWithTimeProvider(widgetIdentity(t, "Z_DEAD"), "s-two", "L2", 2222, mock)
	require.NoError(t, err)
	require.NoError(t, reg.RegisterLock(ctx, deadRec))

	healthy, err := locking.NewRecordWithTimeProvider(widgetIdentity(t, "Z_HEALTHY"), "s-three", "L3", 1111, mock)
	require.NoError(t, err)
	require.NoError(t, reg.RegisterLock(ctx, healthy))

	removed, err := reg.Cleanup(ctx, 5*time.Minute)
	require.NoError(t, err)

	removedNames := make([]string, 0, len(removed))
	for _, rec := range removed {
		removedNames = append(removedNames, rec.Identity().Name())
	}
	assert.ElementsMatch(t, []string{"Z_STALE", "Z_DEAD"}, removedNames)

	// The live-and-fresh record must never be reclaimed.
	got, err := reg.GetLock(ctx, widgetIdentity(t, "Z_HEALTHY"))
	require.NoError(t, err)
	assert.Equal(t, "L3", got.LockHandle())

	// A second sweep finds nothing left to do.
	removed, err = reg.Cleanup(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestLockRegistryCleanupOnEmptyRegistry(t *testing.T) {
	t.Parallel()

	reg, path := newTestRegistry(t, &fakeProber{}, timeutil.Default())

	removed, err := reg.Cleanup(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Empty(t, removed)

	// No file is materialized by a no-op sweep.
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestLockRegistryReadsHandEditedDocument(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "locks.json")
	doc := `[
  {
    "object_type": "WIDGET",
    "object_name": "Z_TEST_1",
    "session_id": "s-manual",
    "lock_handle": "L9",
    "owner_pid": 4242,
    "created_at": "2025-03-01T12:00:00Z"
  }
]`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	reg, err := NewLockRegistry(path, &fakeProber{}, storage.NoOpTracer())
	require.NoError(t, err)

	got, err := reg.GetLock(context.Background(), widgetIdentity(t, "Z_TEST_1"))
	require.NoError(t, err)
	assert.Equal(t, "L9", got.LockHandle())
	assert.Equal(t, "s-manual", got.SessionID())
	assert.Equal(t, 4242, got.OwnerPID())
}

func TestLockRegistryGoldenDocument(t *testing.T) {
	t.Parallel()

	reg, path := newTestRegistry(t, &fakeProber{}, timeutil.Default())
	ctx := context.Background()

	plain := locking.ReconstructRecord(
		widgetIdentity(t, "Z_TEST_1"),
		"s-11111111",
		"L1",
		4242,
		"",
		time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	)
	require.NoError(t, reg.RegisterLock(ctx, plain))

	grouped, err := object.NewGroupedIdentity(object.TypeFunctionModule, "Z_DO_THING", "ZFG_TOOLS")
	require.NoError(t, err)
	withToken := locking.ReconstructRecord(
		grouped,
		"s-22222222",
		"L2",
		4243,
		"origin-7",
		time.Date(2025, 3, 1, 12, 5, 0, 0, time.UTC),
	)
	require.NoError(t, reg.RegisterLock(ctx, withToken))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "lock_registry", data)
}
