// Package transport implements the stateful HTTP connection to the
// remote repository system. Each Client is pinned to one session id:
// it injects the session headers on every call, maintains the cookie
// jar and CSRF token the server hands out, and can snapshot that
// material so a later process resumes the same server-side session.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/adt-armada/internal/domain/protocol"
	"github.com/ahrav/adt-armada/internal/domain/session"
	"github.com/ahrav/adt-armada/pkg/common"
	"github.com/ahrav/adt-armada/pkg/common/idgen"
	"github.com/ahrav/adt-armada/pkg/common/logger"
)

// Client is a stateful connection to the remote system. All requests
// share one cookie jar and one connection-scoped session id, so the
// server routes them to the same stateful work process. Lock handles
// obtained through a Client are only valid on that Client or on one
// resumed from its snapshot.
type Client struct {
	httpClient  *http.Client
	base        *url.URL
	jar         http.CookieJar
	rateLimiter *common.RateLimiter
	logger      *logger.Logger
	tracer      trace.Tracer

	sessionID      string
	username       string
	password       string
	tokenPath      string
	defaultTimeout time.Duration

	mu        sync.Mutex // Protects csrfToken.
	csrfToken string
	createdAt time.Time
}

var _ protocol.StatefulConnection = (*Client)(nil)

// SessionID returns the connection-scoped identifier this client
// presents on every request.
func (c *Client) SessionID() string { return c.sessionID }

// Snapshot captures the session material accumulated so far. The
// returned state can be persisted and later fed to Factory.Resume to
// reattach to the same server-side session.
func (c *Client) Snapshot() (*session.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cookies, err := encodeCookies(c.jar, c.base)
	if err != nil {
		return nil, err
	}
	return session.ReconstructState(c.sessionID, cookies, c.csrfToken, c.createdAt), nil
}

// Do performs one request against the remote system. Session headers
// are injected on every call. A CSRF token is fetched lazily before
// the first mutating request and refreshed once when the server
// rejects it; any second rejection is returned to the caller. HTTP
// error statuses come back as inspectable responses; the returned
// error is non-nil only when no usable response was produced.
func (c *Client) Do(ctx context.Context, req protocol.Request) (*protocol.Response, error) {
	ctx, span := c.tracer.Start(ctx, "transport.do_request", trace.WithAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.path", req.Path),
		attribute.String("session_id", c.sessionID),
	))
	defer span.End()

	if err := c.rateLimiter.Wait(ctx); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	var token string
	if methodMutates(req.Method) {
		var err error
		token, err = c.ensureToken(ctx)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	resp, err := c.send(ctx, req, token)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if methodMutates(req.Method) && resp.StatusCode == http.StatusForbidden && isTokenRejection(resp) {
		c.logger.Info(ctx, "csrf token rejected, refreshing", "session_id", c.sessionID)
		token, err = c.refreshToken(ctx)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		resp, err = c.send(ctx, req, token)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp, nil
}

// send performs one HTTP exchange with the session headers applied.
// The caller owns CSRF policy; send only attaches the token it is
// given.
func (c *Client) send(ctx context.Context, req protocol.Request, csrfToken string) (*protocol.Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.resolve(req.Path, req.Query), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for name, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}
	httpReq.Header.Set(protocol.HeaderConnectionID, c.sessionID)
	httpReq.Header.Set(protocol.HeaderRequestID, idgen.NewRequestID())
	httpReq.Header.Set(protocol.HeaderSessionType, protocol.SessionStateful)
	if csrfToken != "" {
		httpReq.Header.Set(protocol.HeaderCSRFToken, csrfToken)
	}
	httpReq.SetBasicAuth(c.username, c.password)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &protocol.Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       respBody,
	}, nil
}

// resolve joins a server-relative path and query onto the base URL,
// preserving any path prefix the base URL carries.
func (c *Client) resolve(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// ensureToken returns the current CSRF token, fetching one on first
// use.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.csrfToken
	c.mu.Unlock()

	if token != "" {
		return token, nil
	}
	return c.refreshToken(ctx)
}

// refreshToken fetches a fresh CSRF token from the token route and
// records it for subsequent mutating calls.
func (c *Client) refreshToken(ctx context.Context) (string, error) {
	ctx, span := c.tracer.Start(ctx, "transport.fetch_csrf_token")
	defer span.End()

	resp, err := c.send(ctx, protocol.Request{
		Method:  http.MethodGet,
		Path:    c.tokenPath,
		Headers: http.Header{protocol.HeaderCSRFToken: []string{protocol.CSRFTokenFetch}},
	}, "")
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if !resp.IsSuccess() {
		err := fmt.Errorf("token fetch failed with status %d", resp.StatusCode)
		span.RecordError(err)
		return "", err
	}

	token := resp.Headers.Get(protocol.HeaderCSRFToken)
	if token == "" || strings.EqualFold(token, protocol.CSRFTokenFetch) {
		err := errors.New("server did not grant a csrf token")
		span.RecordError(err)
		return "", err
	}

	c.mu.Lock()
	c.csrfToken = token
	c.mu.Unlock()
	return token, nil
}

// methodMutates reports whether the method needs CSRF protection.
func methodMutates(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// isTokenRejection reports whether a 403 is the server demanding a
// fresh CSRF token rather than a genuine authorization failure.
func isTokenRejection(resp *protocol.Response) bool {
	if strings.EqualFold(resp.Headers.Get(protocol.HeaderCSRFToken), "required") {
		return true
	}
	return strings.Contains(strings.ToLower(string(resp.Body)), "csrf")
}
