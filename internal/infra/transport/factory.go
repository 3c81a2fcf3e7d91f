package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/adt-armada/internal/domain/protocol"
	"github.com/ahrav/adt-armada/internal/domain/session"
	"github.com/ahrav/adt-armada/pkg/common"
	"github.com/ahrav/adt-armada/pkg/common/logger"
)

const (
	defaultTokenPath      = "/api/discovery"
	defaultRequestTimeout = 30 * time.Second

	// The remote system shares its worker pool with interactive users;
	// stay well below what a single interactive session would generate.
	defaultRequestsPerSecond = 5
	defaultBurst             = 10
)

// Config carries the connection settings for one remote system.
type Config struct {
	// BaseURL is the root of the remote system: scheme and host, plus
	// an optional path prefix that is preserved on every request.
	BaseURL string

	// Username and Password authenticate every request.
	Username string
	Password string

	// TokenPath is the route used to fetch CSRF tokens. Any cheap GET
	// route the server protects works; defaults to the discovery
	// document.
	TokenPath string

	// RequestTimeout bounds calls that do not carry their own timeout.
	RequestTimeout time.Duration

	// RequestsPerSecond and Burst bound the request rate shared across
	// all sessions the factory opens.
	RequestsPerSecond float64
	Burst             int
}

// Factory opens stateful connections to one remote system. All
// connections share a rate limiter so concurrent workflows cannot
// overwhelm the server's worker pool.
type Factory struct {
	config      Config
	base        *url.URL
	rateLimiter *common.RateLimiter
	logger      *logger.Logger
	tracer      trace.Tracer
}

var _ protocol.Dialer = (*Factory)(nil)

// NewFactory validates the configuration and prepares a connection
// factory for the configured remote system.
func NewFactory(cfg Config, log *logger.Logger, tracer trace.Tracer) (*Factory, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("transport: base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid base URL: %w", err)
	}
	if !base.IsAbs() || base.Host == "" {
		return nil, fmt.Errorf("transport: base URL %q must be absolute", cfg.BaseURL)
	}

	if cfg.TokenPath == "" {
		cfg.TokenPath = defaultTokenPath
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}

	return &Factory{
		config:      cfg,
		base:        base,
		rateLimiter: common.NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst),
		logger:      log,
		tracer:      tracer,
	}, nil
}

// Open starts a stateful connection under a fresh session id.
func (f *Factory) Open(ctx context.Context, sessionID string) (protocol.StatefulConnection, error) {
	if sessionID == "" {
		return nil, errors.New("transport: session id is required")
	}

	client, err := f.newClient(sessionID)
	if err != nil {
		return nil, err
	}
	f.logger.Info(ctx, "opened stateful session", "session_id", sessionID)
	return client, nil
}

// Resume reattaches to the server-side session the persisted state
// belongs to. The restored cookies and CSRF token let this process
// act on locks the original session still holds.
func (f *Factory) Resume(ctx context.Context, state *session.State) (protocol.StatefulConnection, error) {
	if state == nil || state.ID() == "" {
		return nil, errors.New("transport: session state is required")
	}

	client, err := f.newClient(state.ID())
	if err != nil {
		return nil, err
	}
	if err := decodeCookies(client.jar, client.base, state.Cookies()); err != nil {
		return nil, err
	}
	client.csrfToken = state.CSRFToken()
	client.createdAt = state.CreatedAt()

	f.logger.Info(ctx, "resumed stateful session",
		"session_id", state.ID(), "session_age", state.Age().String())
	return client, nil
}

// newClient builds a client pinned to the given session id with its
// own cookie jar.
func (f *Factory) newClient(sessionID string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Client{
		httpClient: &http.Client{
			Jar:       jar,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		base:           f.base,
		jar:            jar,
		rateLimiter:    f.rateLimiter,
		logger:         f.logger,
		tracer:         f.tracer,
		sessionID:      sessionID,
		username:       f.config.Username,
		password:       f.config.Password,
		tokenPath:      f.config.TokenPath,
		defaultTimeout: f.config.RequestTimeout,
		createdAt:      time.Now(),
	}, nil
}
