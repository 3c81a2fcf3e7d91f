package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/adt-armada/internal/domain/session"
	"github.com/ahrav/adt-armada/internal/infra/storage"
)

func TestSessionStoreSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := NewSessionStore(t.TempDir(), storage.NoOpTracer())
	require.NoError(t, err)

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

	store, err := NewSessionStore(t.TempDir(), storage.NoOpTracer())
	require.NoError(t, err)

	_, err = store.Load(context.Background(), "s-missing")
	require.ErrorIs(t, err, session.ErrNoSessionState)
}

func TestSessionStoreSaveReplaces(t *testing.T) {
	t.Parallel()

	store, err := NewSessionStore(t.TempDir(), storage.NoOpTracer())
	require.NoError(t, err)

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

	store, err := NewSessionStore(t.TempDir(), storage.NoOpTracer())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, session.NewState("s-abc")))
	require.NoError(t, store.Delete(ctx, "s-abc"))

	_, err = store.Load(ctx, "s-abc")
	require.ErrorIs(t, err, session.ErrNoSessionState)

	// Deleting again is not an error.
	require.NoError(t, store.Delete(ctx, "s-abc"))
}

func TestSessionStoreSurvivesProcessBoundary(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	ctx := context.Background()

	first, err := NewSessionStore(root, storage.NoOpTracer())
	require.NoError(t, err)
	state := session.NewState("s-abc")
	state.UpdateCookies([]byte("cookie-blob"))
	require.NoError(t, first.Save(ctx, state))

	// A fresh store on the same root stands in for a second process.
	second, err := NewSessionStore(root, storage.NoOpTracer())
	require.NoError(t, err)
	loaded, err := second.Load(ctx, "s-abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("cookie-blob"), loaded.Cookies())
}

func TestSessionStoreRejectsUnsafeIDs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := NewSessionStore(root, storage.NoOpTracer())
	require.NoError(t, err)

	ctx := context.Background()
	for _, id := range []string{"", "../escape", "a/b", `a\b`} {
		_, err := store.Load(ctx, id)
		assert.Error(t, err, "id %q", id)
	}

	// Nothing may be created outside the root by a rejected id.
	entries, err := os.ReadDir(filepath.Dir(root))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "escape")
	}
}

func TestSessionStoreIsolatesDistinctIDs(t *testing.T) {
	t.Parallel()

	store, err := NewSessionStore(t.TempDir(), storage.NoOpTracer())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, session.NewState("s-one")))
	require.NoError(t, store.Save(ctx, session.NewState("s-two")))
	require.NoError(t, store.Delete(ctx, "s-one"))

	_, err = store.Load(ctx, "s-two")
	require.NoError(t, err)
}
