// Package protocol defines the wire-facing domain types for talking to
// the remote repository system: the Connection port the lifecycle
// machinery issues calls through, the request/response shapes, the
// session header contract, and the resource routes.
package protocol

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/ahrav/adt-armada/internal/domain/session"
)

// Request describes one HTTP call against the remote system. Paths are
// server-relative; the Connection implementation owns the base URL,
// authentication, and TLS.
type Request struct {
	// Method is the HTTP method.
	Method string

	// Path is the server-relative resource path.
	Path string

	// Query holds the query parameters, if any.
	Query url.Values

	// Headers holds extra request headers. The Connection merges them
	// with the session headers it injects itself.
	Headers http.Header

	// Body is the request payload, or nil.
	Body []byte

	// Timeout bounds the call. Zero means the Connection's default.
	Timeout time.Duration
}

// Response is the observable outcome of a request. Error statuses are
// returned here, not as Go errors, so callers can inspect status and
// body together when classifying faults; a Go error means the call
// itself failed (connection error, timeout, cancellation).
type Response struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Headers holds the response headers.
	Headers http.Header

	// Body is the raw response payload.
	Body []byte
}

// IsSuccess reports whether the status code is in the 2xx range.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Connection issues HTTP requests to the remote system. Implementations
// manage cookies, CSRF tokens, and the stateful session headers; they
// must support arbitrary additional headers and must surface HTTP error
// statuses as inspectable responses rather than opaque errors.
//
// Implementations must be safe for concurrent use by multiple
// workflows.
type Connection interface {
	// Do performs the request. The returned error is non-nil only when
	// no usable response was produced.
	Do(ctx context.Context, req Request) (*Response, error)
}

// StatefulConnection is a Connection pinned to one server-side session.
// All requests through it carry the same connection identifier so the
// remote system routes them to the same stateful work process.
type StatefulConnection interface {
	Connection

	// SessionID returns the stable identifier this connection presents
	// as X-Adt-Connection-Id.
	SessionID() string

	// Snapshot captures the current session state (cookies and CSRF
	// token) for persistence, so a later process can resume the
	// server-side session without re-authenticating.
	Snapshot() (*session.State, error)
}

// Dialer opens stateful connections. Open starts a fresh session;
// Resume rehydrates one from persisted state, reattaching to the
// server-side session the state belongs to.
type Dialer interface {
	Open(ctx context.Context, sessionID string) (StatefulConnection, error)
	Resume(ctx context.Context, state *session.State) (StatefulConnection, error)
}
