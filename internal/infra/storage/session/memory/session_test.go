package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/adt-armada/internal/domain/session"
)

func TestSessionStoreSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewSessionStore()
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	state := session.ReconstructState("s-abc", []byte("cookie-blob"), "token-1", created)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, state))

	loaded, err := store.Load(ctx, "s-abc")
	require.NoError(t, err)
	assert.Equal(t, "s-abc", loaded.ID())
	assert.Equal(t, []byte("cookie-blob"), loaded.Cookies())
	assert.Equal(t, "token-1", loaded.CSRFToken())
	assert.True(t, created.Equal(loaded.CreatedAt()))
}

func TestSessionStoreLoadMissing(t *testing.T) {
	t.Parallel()

	store := NewSessionStore()
	_, err := store.Load(context.Background(), "s-missing")
	require.ErrorIs(t, err, session.ErrNoSessionState)
}

func TestSessionStoreSaveReplaces(t *testing.T) {
	t.Parallel()

	store := NewSessionStore()
	ctx := context.Background()

	state := session.NewState("s-abc")
	state.RefreshCSRFToken("token-1")
	require.NoError(t, store.Save(ctx, state))

	state.RefreshCSRFToken("token-2")
	require.NoError(t, store.Save(ctx, state))

	loaded, err := store.Load(ctx, "s-abc")
	require.NoError(t, err)
	assert.Equal(t, "token-2", loaded.CSRFToken())
}

func TestSessionStoreDelete(t *testing.T) {
	t.Parallel()

	store := NewSessionStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, session.NewState("s-abc")))
	require.NoError(t, store.Delete(ctx, "s-abc"))

	_, err := store.Load(ctx, "s-abc")
	require.ErrorIs(t, err, session.ErrNoSessionState)

	// Deleting again is not an error.
	require.NoError(t, store.Delete(ctx, "s-abc"))
}

func TestSessionStoreCopiesStateBothWays(t *testing.T) {
	t.Parallel()

	store := NewSessionStore()
	ctx := context.Background()

	state := session.NewState("s-abc")
	state.RefreshCSRFToken("token-1")
	require.NoError(t, store.Save(ctx, state))

	// Mutating the caller's state after Save must not leak into the
	// store, and mutating a loaded state must not leak back.
	state.RefreshCSRFToken("token-2")

	loaded, err := store.Load(ctx, "s-abc")
	require.NoError(t, err)
	assert.Equal(t, "token-1", loaded.CSRFToken())

	loaded.RefreshCSRFToken("token-3")
	again, err := store.Load(ctx, "s-abc")
	require.NoError(t, err)
	assert.Equal(t, "token-1", again.CSRFToken())
}
