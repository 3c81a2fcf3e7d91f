package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/adt-armada/pkg/common/timeutil"
)

func TestNewState(t *testing.T) {
	t.Parallel()

	mock := &timeutil.Mock{CurrentTime: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	state := NewStateWithTimeProvider("s-abc", mock)

	assert.Equal(t, "s-abc", state.ID())
	assert.Equal(t, mock.CurrentTime, state.CreatedAt())
	assert.Nil(t, state.Cookies())
	assert.Empty(t, state.CSRFToken())
}

func TestStateAge(t *testing.T) {
	t.Parallel()

	mock := &timeutil.Mock{CurrentTime: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	state := NewStateWithTimeProvider("s-abc", mock)

	mock.Advance(90 * time.Second)
	assert.Equal(t, 90*time.Second, state.Age())
}

func TestStateCookiesAreCopied(t *testing.T) {
	t.Parallel()

	state := NewState("s-abc")
	raw := []byte(`[{"name":"SAP_SESSIONID","value":"xyz"}]`)
	state.UpdateCookies(raw)

	// Mutating either the input or the returned slice must not leak
	// into the stored material.
	raw[0] = 'X'
	got := state.Cookies()
	assert.Equal(t, byte('['), got[0])

	got[0] = 'Y'
	assert.Equal(t, byte('['), state.Cookies()[0])
}

func TestStateRefreshCSRFToken(t *testing.T) {
	t.Parallel()

	state := NewState("s-abc")
	state.RefreshCSRFToken("token-1")
	assert.Equal(t, "token-1", state.CSRFToken())

	state.RefreshCSRFToken("token-2")
	assert.Equal(t, "token-2", state.CSRFToken())
}

func TestStateJSONRoundTrip(t *testing.T) {
	t.Parallel()

	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	state := ReconstructState("s-abc", []byte("cookie-blob"), "token-1", created)

	data, err := json.Marshal(state)
	require.NoError(t, err)

	var restored State
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.Equal(t, state.ID(), restored.ID())
	assert.Equal(t, state.Cookies(), restored.Cookies())
	assert.Equal(t, state.CSRFToken(), restored.CSRFToken())
	assert.True(t, state.CreatedAt().Equal(restored.CreatedAt()))
}
