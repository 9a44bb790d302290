package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/tsarna/homelink/pkg/homelink/clock"
	"github.com/tsarna/homelink/pkg/homelink/notify"
	"github.com/tsarna/homelink/pkg/homelink/o11y"
	"go.uber.org/zap"
)

const (
	DefaultMaxRetries   = 5
	DefaultBaseDelay    = 3 * time.Second
	DefaultDialTimeout  = 30 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultReadLimit    = 1 << 20
)

// ExhaustedMessage is the warning pushed to the notifier when reconnecting
// gives up.
const ExhaustedMessage = "Connection to the server lost"

// AuthorizationProvider returns the Authorization header value for the
// handshake, e.g. "Bearer token123".
type AuthorizationProvider func(ctx context.Context) (string, error)

// ClientBuilder provides a fluent interface for building channel clients.
type ClientBuilder struct {
	url          string
	logger       *zap.Logger
	dialTimeout  time.Duration
	writeTimeout time.Duration
	readLimit    int64
	maxRetries   int
	baseDelay    time.Duration
	dialer       Dialer
	clock        clock.Clock
	authProvider AuthorizationProvider
	headers      map[string][]string
	monitor      Monitor
	notifier     notify.Sink
	observer     FrameObserver
	metrics      o11y.MetricsProvider
}

// NewClient creates a new channel client builder.
func NewClient() *ClientBuilder {
	return &ClientBuilder{
		logger:       zap.NewNop(),
		dialTimeout:  DefaultDialTimeout,
		writeTimeout: DefaultWriteTimeout,
		readLimit:    DefaultReadLimit,
		maxRetries:   DefaultMaxRetries,
		baseDelay:    DefaultBaseDelay,
	}
}

// WithURL sets the channel URL to connect to.
func (b *ClientBuilder) WithURL(url string) *ClientBuilder {
	b.url = url
	return b
}

// WithLogger sets the logger for the client.
func (b *ClientBuilder) WithLogger(logger *zap.Logger) *ClientBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithDialTimeout bounds the handshake.
func (b *ClientBuilder) WithDialTimeout(timeout time.Duration) *ClientBuilder {
	if timeout > 0 {
		b.dialTimeout = timeout
	}
	return b
}

// WithWriteTimeout bounds each Send.
func (b *ClientBuilder) WithWriteTimeout(timeout time.Duration) *ClientBuilder {
	if timeout > 0 {
		b.writeTimeout = timeout
	}
	return b
}

// WithReadLimit sets the largest frame accepted, in bytes.
func (b *ClientBuilder) WithReadLimit(n int64) *ClientBuilder {
	if n > 0 {
		b.readLimit = n
	}
	return b
}

// WithMaxRetries sets how many reconnects are scheduled after consecutive
// failures. Zero disables reconnecting.
func (b *ClientBuilder) WithMaxRetries(n int) *ClientBuilder {
	b.maxRetries = n
	return b
}

// WithBaseDelay sets the reconnect delay unit; retry n waits n times this.
func (b *ClientBuilder) WithBaseDelay(d time.Duration) *ClientBuilder {
	b.baseDelay = d
	return b
}

// WithDialer replaces the websocket dialer.
func (b *ClientBuilder) WithDialer(d Dialer) *ClientBuilder {
	b.dialer = d
	return b
}

// WithClock sets the clock reconnects are scheduled on.
func (b *ClientBuilder) WithClock(c clock.Clock) *ClientBuilder {
	b.clock = c
	return b
}

// WithAuthorization sets a static Authorization header value.
func (b *ClientBuilder) WithAuthorization(authHeader string) *ClientBuilder {
	b.authProvider = func(ctx context.Context) (string, error) {
		return authHeader, nil
	}
	return b
}

// WithAuthorizationProvider sets a function called on every dial to obtain
// the Authorization header.
func (b *ClientBuilder) WithAuthorizationProvider(provider AuthorizationProvider) *ClientBuilder {
	b.authProvider = provider
	return b
}

// WithHeaders adds handshake headers, replacing values of existing keys.
func (b *ClientBuilder) WithHeaders(headers map[string][]string) *ClientBuilder {
	if b.headers == nil {
		b.headers = make(map[string][]string)
	}
	for key, values := range headers {
		b.headers[key] = values
	}
	return b
}

// WithHeader sets a single handshake header.
func (b *ClientBuilder) WithHeader(key, value string) *ClientBuilder {
	if b.headers == nil {
		b.headers = make(map[string][]string)
	}
	b.headers[key] = []string{value}
	return b
}

func (b *ClientBuilder) WithMonitor(monitor Monitor) *ClientBuilder {
	b.monitor = monitor
	return b
}

// WithNotifier sets where a warning is pushed when reconnecting gives up.
func (b *ClientBuilder) WithNotifier(sink notify.Sink) *ClientBuilder {
	b.notifier = sink
	return b
}

func (b *ClientBuilder) WithFrameObserver(observer FrameObserver) *ClientBuilder {
	b.observer = observer
	return b
}

func (b *ClientBuilder) WithMetricsProvider(m o11y.MetricsProvider) *ClientBuilder {
	b.metrics = m
	return b
}

// Build creates and returns a new channel client with the configured options.
func (b *ClientBuilder) Build() (*Client, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	dialer := b.dialer
	if dialer == nil {
		dialer = WebsocketDialer{}
	}
	clk := b.clock
	if clk == nil {
		clk = clock.Real{}
	}
	metrics := b.metrics
	if metrics == nil {
		metrics = o11y.Nop{}
	}

	c := &Client{
		url:          b.url,
		logger:       b.logger,
		dialTimeout:  b.dialTimeout,
		writeTimeout: b.writeTimeout,
		readLimit:    b.readLimit,
		maxRetries:   b.maxRetries,
		baseDelay:    b.baseDelay,
		dialer:       dialer,
		clock:        clk,
		authProvider: b.authProvider,
		headers:      b.headers,
		monitor:      b.monitor,
		notifier:     b.notifier,
		observer:     b.observer,
		registry:     newRegistry(),
		stateCh:      make(chan struct{}),

		framesIn:   metrics.Counter("homelink.channel.frames"),
		malformed:  metrics.Counter("homelink.channel.malformed_frames"),
		reconnects: metrics.Counter("homelink.channel.reconnects"),
		stateGauge: metrics.Gauge("homelink.channel.state"),
	}

	return c, nil
}

// IsValid checks that all required configuration is present.
func (b *ClientBuilder) IsValid() error {
	if b.url == "" {
		return fmt.Errorf("URL is required")
	}

	if b.maxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", b.maxRetries)
	}

	if b.baseDelay < 0 {
		return fmt.Errorf("base delay must not be negative")
	}

	if b.logger == nil {
		b.logger = zap.NewNop()
	}

	return nil
}
