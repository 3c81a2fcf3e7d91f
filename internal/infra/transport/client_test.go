package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/adt-armada/internal/domain/protocol"
	"github.com/ahrav/adt-armada/pkg/common/logger"
)

func newTestFactory(t *testing.T, baseURL string) *Factory {
	t.Helper()

	f, err := NewFactory(Config{
		BaseURL:  baseURL,
		Username: "developer",
		Password: "secret",
		// Keep tests fast; production defaults apply real throttling.
		RequestsPerSecond: 1000,
		Burst:             1000,
	}, logger.New(io.Discard, logger.LevelDebug, "test", nil), noop.NewTracerProvider().Tracer("test"))
	require.NoError(t, err)
	return f
}

func TestClientInjectsSessionHeaders(t *testing.T) {
	t.Parallel()

	type call struct {
		connectionID string
		requestID    string
		sessionType  string
		user         string
		pass         string
	}
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		calls = append(calls, call{
			connectionID: r.Header.Get(protocol.HeaderConnectionID),
			requestID:    r.Header.Get(protocol.HeaderRequestID),
			sessionType:  r.Header.Get(protocol.HeaderSessionType),
			user:         user,
			pass:         pass,
		})
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	conn, err := newTestFactory(t, srv.URL).Open(context.Background(), "s-test-1")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		resp, err := conn.Do(context.Background(), protocol.Request{
			Method: http.MethodGet,
			Path:   "/api/repository/objects/widgets/z_test_1",
		})
		require.NoError(t, err)
		assert.True(t, resp.IsSuccess())
	}

	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.Equal(t, "s-test-1", c.connectionID)
		assert.Equal(t, protocol.SessionStateful, c.sessionType)
		assert.NotEmpty(t, c.requestID)
		assert.Equal(t, "developer", c.user)
		assert.Equal(t, "secret", c.pass)
	}
	assert.NotEqual(t, calls[0].requestID, calls[1].requestID,
		"each call must carry a unique request id")
}

func TestClientFetchesTokenOnFirstMutatingCall(t *testing.T) {
	t.Parallel()

	var tokenFetches int
	var fetchHeader string
	var postTokens []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/discovery":
			tokenFetches++
			fetchHeader = r.Header.Get(protocol.HeaderCSRFToken)
			w.Header().Set(protocol.HeaderCSRFToken, "tok-1")
		case r.Method == http.MethodPost:
			postTokens = append(postTokens, r.Header.Get(protocol.HeaderCSRFToken))
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	conn, err := newTestFactory(t, srv.URL).Open(context.Background(), "s-csrf")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		resp, err := conn.Do(context.Background(), protocol.Request{
			Method: http.MethodPost,
			Path:   "/api/repository/objects/widgets",
			Body:   []byte("<widget/>"),
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	assert.Equal(t, 1, tokenFetches, "token should be fetched once and cached")
	assert.Equal(t, protocol.CSRFTokenFetch, fetchHeader)
	assert.Equal(t, []string{"tok-1", "tok-1"}, postTokens)
}

func TestClientSkipsTokenForReads(t *testing.T) {
	t.Parallel()

	var tokenFetches int
	var readToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/discovery" {
			tokenFetches++
			w.Header().Set(protocol.HeaderCSRFToken, "tok-1")
			return
		}
		readToken = r.Header.Get(protocol.HeaderCSRFToken)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	conn, err := newTestFactory(t, srv.URL).Open(context.Background(), "s-read")
	require.NoError(t, err)

	_, err = conn.Do(context.Background(), protocol.Request{
		Method: http.MethodGet,
		Path:   "/api/repository/objects/widgets/z_test_1",
	})
	require.NoError(t, err)

	assert.Zero(t, tokenFetches)
	assert.Empty(t, readToken)
}

func TestClientRefreshesRejectedToken(t *testing.T) {
	t.Parallel()

	var tokenFetches, posts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/discovery":
			tokenFetches++
			token := "stale"
			if tokenFetches > 1 {
				token = "fresh"
			}
			w.Header().Set(protocol.HeaderCSRFToken, token)
		case r.Method == http.MethodPost:
			posts++
			if r.Header.Get(protocol.HeaderCSRFToken) != "fresh" {
				w.Header().Set(protocol.HeaderCSRFToken, "Required")
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	conn, err := newTestFactory(t, srv.URL).Open(context.Background(), "s-refresh")
	require.NoError(t, err)

	resp, err := conn.Do(context.Background(), protocol.Request{
		Method: http.MethodPost,
		Path:   "/api/repository/objects/widgets",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, tokenFetches, "rejection should trigger exactly one refresh")
	assert.Equal(t, 2, posts, "rejected call should be replayed exactly once")
}

func TestClientLeavesGenuineForbiddenAlone(t *testing.T) {
	t.Parallel()

	var tokenFetches, posts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/discovery" {
			tokenFetches++
			w.Header().Set(protocol.HeaderCSRFToken, "tok-1")
			return
		}
		posts++
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("user lacks authorization for this package"))
	}))
	defer srv.Close()

	conn, err := newTestFactory(t, srv.URL).Open(context.Background(), "s-authz")
	require.NoError(t, err)

	resp, err := conn.Do(context.Background(), protocol.Request{
		Method: http.MethodPost,
		Path:   "/api/repository/objects/widgets",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 1, tokenFetches, "authorization failures must not trigger a token refresh")
	assert.Equal(t, 1, posts)
}

func TestClientReturnsErrorStatusesAsResponses(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("Object DOMA Z_TEST_1 is locked by user DEVELOPER"))
	}))
	defer srv.Close()

	conn, err := newTestFactory(t, srv.URL).Open(context.Background(), "s-conflict")
	require.NoError(t, err)

	resp, err := conn.Do(context.Background(), protocol.Request{
		Method: http.MethodGet,
		Path:   "/api/repository/objects/widgets/z_test_1",
	})
	require.NoError(t, err, "error statuses must come back as responses, not errors")

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.False(t, resp.IsSuccess())
	assert.Contains(t, string(resp.Body), "is locked by")
}

func TestClientHonorsRequestTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	conn, err := newTestFactory(t, srv.URL).Open(context.Background(), "s-slow")
	require.NoError(t, err)

	_, err = conn.Do(context.Background(), protocol.Request{
		Method:  http.MethodGet,
		Path:    "/api/repository/objects/widgets/z_test_1",
		Timeout: 30 * time.Millisecond,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientSnapshotResumeKeepsSession(t *testing.T) {
	t.Parallel()

	var tokenFetches, posts int
	var lastCookie, lastToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/discovery" {
			tokenFetches++
			http.SetCookie(w, &http.Cookie{Name: "SAP_SESSIONID", Value: "alpha", Path: "/"})
			w.Header().Set(protocol.HeaderCSRFToken, "tok-9")
			return
		}
		posts++
		if c, err := r.Cookie("SAP_SESSIONID"); err == nil {
			lastCookie = c.Value
		}
		lastToken = r.Header.Get(protocol.HeaderCSRFToken)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	conn, err := newTestFactory(t, srv.URL).Open(context.Background(), "s-resume")
	require.NoError(t, err)

	// The first mutating call establishes cookies and a token.
	_, err = conn.Do(context.Background(), protocol.Request{
		Method: http.MethodPost,
		Path:   "/api/repository/objects/widgets",
	})
	require.NoError(t, err)

	state, err := conn.Snapshot()
	require.NoError(t, err)
	require.Equal(t, "s-resume", state.ID())
	require.NotEmpty(t, state.Cookies())
	require.Equal(t, "tok-9", state.CSRFToken())

	// A second factory stands in for a freshly started process.
	resumed, err := newTestFactory(t, srv.URL).Resume(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, "s-resume", resumed.SessionID())

	_, err = resumed.Do(context.Background(), protocol.Request{
		Method: http.MethodPost,
		Path:   "/api/repository/objects/widgets",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, posts)
	assert.Equal(t, "alpha", lastCookie, "resumed client should present the session cookie")
	assert.Equal(t, "tok-9", lastToken, "resumed client should reuse the persisted token")
	assert.Equal(t, 1, tokenFetches, "resuming must not re-fetch the token")
}

func TestClientPreservesBasePathPrefix(t *testing.T) {
	t.Parallel()

	var gotPath, gotAction string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAction = r.URL.Query().Get(protocol.QueryAction)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	conn, err := newTestFactory(t, srv.URL+"/gateway").Open(context.Background(), "s-prefix")
	require.NoError(t, err)

	_, err = conn.Do(context.Background(), protocol.Request{
		Method: http.MethodGet,
		Path:   "/api/repository/objects/widgets/z_test_1",
		Query:  url.Values{protocol.QueryAction: {protocol.ActionLock}},
	})
	require.NoError(t, err)

	assert.Equal(t, "/gateway/api/repository/objects/widgets/z_test_1", gotPath)
	assert.Equal(t, protocol.ActionLock, gotAction)
}

func TestClientSurfacesTokenFetchFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/discovery" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	conn, err := newTestFactory(t, srv.URL).Open(context.Background(), "s-unavailable")
	require.NoError(t, err)

	_, err = conn.Do(context.Background(), protocol.Request{
		Method: http.MethodPost,
		Path:   "/api/repository/objects/widgets",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token fetch failed")
}

func TestNewFactoryValidatesBaseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		baseURL string
	}{
		{name: "empty", baseURL: ""},
		{name: "missing scheme", baseURL: "host.example.com/sap"},
		{name: "missing host", baseURL: "http://"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewFactory(Config{BaseURL: tt.baseURL},
				logger.New(io.Discard, logger.LevelDebug, "test", nil),
				noop.NewTracerProvider().Tracer("test"))
			require.Error(t, err)
		})
	}
}

func TestFactoryRejectsMissingSession(t *testing.T) {
	t.Parallel()

	factory := newTestFactory(t, "http://localhost:50000")

	_, err := factory.Open(context.Background(), "")
	require.Error(t, err)

	_, err = factory.Resume(context.Background(), nil)
	require.Error(t, err)
}
