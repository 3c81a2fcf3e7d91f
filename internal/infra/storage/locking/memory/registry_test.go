package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/adt-armada/internal/domain/locking"
	"github.com/ahrav/adt-armada/internal/domain/object"
	"github.com/ahrav/adt-armada/pkg/common/timeutil"
)

type fakeProber struct{ dead map[int]bool }

func (p *fakeProber) Alive(_ context.Context, pid int) bool { return !p.dead[pid] }

func testIdentity(t *testing.T, name string) object.Identity {
	t.Helper()

	id, err := object.NewIdentity(object.TypeDomain, name)
	require.NoError(t, err)
	return id
}

func TestLockRegistryRegisterGetRemove(t *testing.T) {
	t.Parallel()

	reg := NewLockRegistry(&fakeProber{})
	ctx := context.Background()
	identity := testIdentity(t, "Z_TEST_1")

	rec, err := locking.NewRecord(identity, "s-abc", "L1", 4242)
	require.NoError(t, err)
	require.NoError(t, reg.RegisterLock(ctx, rec))

	got, err := reg.GetLock(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, "L1", got.LockHandle())

	require.NoError(t, reg.RemoveLock(ctx, identity))
	_, err = reg.GetLock(ctx, identity)
	require.ErrorIs(t, err, locking.ErrLockNotFound)
}

func TestLockRegistryReplacesOnReregister(t *testing.T) {
	t.Parallel()

	reg := NewLockRegistry(&fakeProber{})
	ctx := context.Background()
	identity := testIdentity(t, "Z_TEST_1")

	first, err := locking.NewRecord(identity, "s-one", "L1", 4242)
	require.NoError(t, err)
	second, err := locking.NewRecord(identity, "s-two", "L2", 4242)
	require.NoError(t, err)

	require.NoError(t, reg.RegisterLock(ctx, first))
	require.NoError(t, reg.RegisterLock(ctx, second))

	got, err := reg.GetLock(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, "L2", got.LockHandle())
	assert.Equal(t, "s-two", got.SessionID())
}

func TestLockRegistryGetReturnsCopy(t *testing.T) {
	t.Parallel()

	reg := NewLockRegistry(&fakeProber{})
	ctx := context.Background()
	identity := testIdentity(t, "Z_TEST_1")

	rec, err := locking.NewRecord(identity, "s-abc", "L1", 4242)
	require.NoError(t, err)
	require.NoError(t, reg.RegisterLock(ctx, rec))

	got, err := reg.GetLock(ctx, identity)
	require.NoError(t, err)
	got.SetOriginToken("mutated")

	again, err := reg.GetLock(ctx, identity)
	require.NoError(t, err)
	assert.Empty(t, again.OriginToken())
}

func TestLockRegistryList(t *testing.T) {
	t.Parallel()

	reg := NewLockRegistry(&fakeProber{})
	ctx := context.Background()

	records, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	first, err := locking.NewRecord(testIdentity(t, "Z_TEST_1"), "s-one", "L1", 4242)
	require.NoError(t, err)
	second, err := locking.NewRecord(testIdentity(t, "Z_TEST_2"), "s-two", "L2", 4242)
	require.NoError(t, err)
	require.NoError(t, reg.RegisterLock(ctx, first))
	require.NoError(t, reg.RegisterLock(ctx, second))

	records, err = reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Registration order is preserved.
	assert.Equal(t, "L1", records[0].LockHandle())
	assert.Equal(t, "L2", records[1].LockHandle())
}

func TestLockRegistryCleanup(t *testing.T) {
	t.Parallel()

	mock := &timeutil.Mock{CurrentTime: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	prober := &fakeProber{dead: map[int]bool{2222: true}}
	reg := NewLockRegistryWithTimeProvider(prober, mock)
	ctx := context.Background()

	staleRec, err := locking.NewRecordWithTimeProvider(testIdentity(t, "Z_STALE"), "s-one", "L1", 1111, mock)
	require.NoError(t, err)
	require.NoError(t, reg.RegisterLock(ctx, staleRec))

	mock.Advance(10 * time.Minute)

	deadRec, err := locking.NewRecordWithTimeProvider(testIdentity(t, "Z_DEAD"), "s-two", "L2", 2222, mock)
	require.NoError(t, err)
	require.NoError(t, reg.RegisterLock(ctx, deadRec))

	healthy, err := locking.NewRecordWithTimeProvider(testIdentity(t, "Z_HEALTHY"), "s-three", "L3", 1111, mock)
	require.NoError(t, err)
	require.NoError(t, reg.RegisterLock(ctx, healthy))

	removed, err := reg.Cleanup(ctx, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, removed, 2)

	_, err = reg.GetLock(ctx, testIdentity(t, "Z_HEALTHY"))
	require.NoError(t, err)
	_, err = reg.GetLock(ctx, testIdentity(t, "Z_STALE"))
	require.ErrorIs(t, err, locking.ErrLockNotFound)
}
