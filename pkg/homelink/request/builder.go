package request

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tsarna/homelink/pkg/homelink/credentials"
	"github.com/tsarna/homelink/pkg/homelink/errnorm"
	"github.com/tsarna/homelink/pkg/homelink/o11y"
	"go.uber.org/zap"
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
	DefaultTimeout    = 30 * time.Second
)

// Resolver maps a request path to an absolute URL.
type Resolver interface {
	APIURL(path string) string
}

// ClientBuilder provides a fluent interface for building request clients.
type ClientBuilder struct {
	resolver   Resolver
	httpClient *http.Client
	timeout    time.Duration
	store      credentials.Store
	reporter   *errnorm.Reporter
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
	metrics    o11y.MetricsProvider
	tracing    o11y.TracingProvider
}

// NewClient creates a new request client builder.
func NewClient() *ClientBuilder {
	return &ClientBuilder{
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		logger:     zap.NewNop(),
	}
}

// WithResolver sets how request paths become URLs. Required.
func (b *ClientBuilder) WithResolver(r Resolver) *ClientBuilder {
	b.resolver = r
	return b
}

// WithHTTPClient replaces the HTTP client. The builder's timeout is not
// applied to a supplied client.
func (b *ClientBuilder) WithHTTPClient(c *http.Client) *ClientBuilder {
	b.httpClient = c
	return b
}

// WithTimeout sets the per-attempt timeout of the default HTTP client.
func (b *ClientBuilder) WithTimeout(timeout time.Duration) *ClientBuilder {
	if timeout > 0 {
		b.timeout = timeout
	}
	return b
}

// WithStore sets where the bearer token is read from.
func (b *ClientBuilder) WithStore(store credentials.Store) *ClientBuilder {
	b.store = store
	return b
}

// WithReporter sets the reporter failures are published to.
func (b *ClientBuilder) WithReporter(r *errnorm.Reporter) *ClientBuilder {
	b.reporter = r
	return b
}

// WithMaxRetries sets the total number of attempts for retryable failures.
func (b *ClientBuilder) WithMaxRetries(n int) *ClientBuilder {
	b.maxRetries = n
	return b
}

// WithRetryDelay sets the base delay; attempt n waits n times this value.
func (b *ClientBuilder) WithRetryDelay(d time.Duration) *ClientBuilder {
	b.retryDelay = d
	return b
}

// WithLogger sets the logger for the client.
func (b *ClientBuilder) WithLogger(logger *zap.Logger) *ClientBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

func (b *ClientBuilder) WithMetricsProvider(m o11y.MetricsProvider) *ClientBuilder {
	b.metrics = m
	return b
}

func (b *ClientBuilder) WithTracingProvider(t o11y.TracingProvider) *ClientBuilder {
	b.tracing = t
	return b
}

// Build creates and returns a new request client with the configured options.
func (b *ClientBuilder) Build() (*Client, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	var rest *resty.Client
	if b.httpClient != nil {
		rest = resty.NewWithClient(b.httpClient)
	} else {
		rest = resty.New().SetTimeout(b.timeout)
	}
	// Retries are driven by Execute; resty sends each attempt once.
	rest.SetRetryCount(0).
		SetAllowGetMethodPayload(true).
		SetLogger(b.logger.Sugar())

	metrics := b.metrics
	if metrics == nil {
		metrics = o11y.Nop{}
	}
	tracing := b.tracing
	if tracing == nil {
		tracing = o11y.Nop{}
	}

	return &Client{
		resolver:   b.resolver,
		rest:       rest,
		store:      b.store,
		reporter:   b.reporter,
		maxRetries: b.maxRetries,
		retryDelay: b.retryDelay,
		logger:     b.logger,
		tracing:    tracing,

		attempts:    metrics.Counter("homelink.request.attempts"),
		retries:     metrics.Counter("homelink.request.retries"),
		failures:    metrics.Counter("homelink.request.failures"),
		duration:    metrics.Histogram("homelink.request.duration"),
		retryDelays: metrics.Histogram("homelink.request.retry_delay_ms"),
	}, nil
}

// IsValid checks that all required configuration is present.
func (b *ClientBuilder) IsValid() error {
	if b.resolver == nil {
		return fmt.Errorf("resolver is required")
	}

	if b.maxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", b.maxRetries)
	}

	if b.retryDelay < 0 {
		return fmt.Errorf("retry delay must not be negative")
	}

	if b.logger == nil {
		b.logger = zap.NewNop()
	}

	return nil
}
