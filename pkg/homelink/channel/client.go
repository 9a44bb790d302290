// Package channel implements the long-lived event channel: a websocket
// connection that reconnects with linear backoff and fans typed events out
// to many subscribers.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/tsarna/homelink/pkg/homelink/clock"
	"github.com/tsarna/homelink/pkg/homelink/notify"
	"github.com/tsarna/homelink/pkg/homelink/o11y"
	"go.uber.org/zap"
)

// ErrClientClosed is returned by Connect and AwaitConnected after Close.
var ErrClientClosed = errors.New("channel client is closed")

// Client is a reconnecting websocket client with a subscription registry.
type Client struct {
	// Configuration
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

	registry *registry

	// Connection state, guarded by mu. gen identifies the current
	// connection attempt; events from older attempts are ignored.
	mu         sync.Mutex
	state      State
	retryCount int
	conn       Conn
	cancel     context.CancelFunc
	timer      clock.Timer
	closed     bool
	gen        uint64
	stateCh    chan struct{}

	framesIn   o11y.Counter
	malformed  o11y.Counter
	reconnects o11y.Counter
	stateGauge o11y.Gauge
}

// Connect starts a connection attempt in the background. It is a no-op
// while connecting or connected.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}

	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	c.logger.Debug("Connecting channel", zap.String("url", c.url))
	go c.run(ctx, gen)
	return nil
}

// Close stops reconnecting and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	timer := c.timer
	c.timer = nil
	conn := c.conn
	c.conn = nil
	cancel := c.cancel
	c.cancel = nil
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}

	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "client closed")
	}
	if cancel != nil {
		cancel()
	}

	c.logger.Info("Channel client closed", zap.String("url", c.url))
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("failed to close channel: %w", err)
	}
	return nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RetryCount returns the number of reconnects scheduled since the last
// successful open.
func (c *Client) RetryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retryCount
}

// URL returns the channel URL.
func (c *Client) URL() string { return c.url }

// AwaitConnected blocks until the client is connected, ctx is done or the
// client is closed.
func (c *Client) AwaitConnected(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.state == StateConnected {
			c.mu.Unlock()
			return nil
		}
		if c.closed {
			c.mu.Unlock()
			return ErrClientClosed
		}
		ch := c.stateCh
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Subscribe registers handler for events matching (group, typ). Pass an
// empty typ for events without an action.
func (c *Client) Subscribe(group, typ string, handler Handler) *Subscription {
	sub := &Subscription{key: Key{Group: group, Type: typ}, handler: handler}
	c.registry.add(sub)
	c.logger.Debug("Subscribed", zap.Stringer("key", sub.key))
	return sub
}

// Unsubscribe removes one subscription. It reports whether sub was
// registered.
func (c *Client) Unsubscribe(sub *Subscription) bool {
	if sub == nil {
		return false
	}
	removed := c.registry.remove(sub)
	if removed {
		c.logger.Debug("Unsubscribed", zap.Stringer("key", sub.key))
	}
	return removed
}

// Subscriptions returns the number of distinct keys with handlers.
func (c *Client) Subscriptions() int { return c.registry.len() }

// Handlers returns the number of handlers registered under (group, typ).
func (c *Client) Handlers(group, typ string) int {
	return c.registry.count(Key{Group: group, Type: typ})
}

// Send writes message as a text frame. Nothing is queued: it returns false
// unless the client is connected and the write succeeds.
func (c *Client) Send(message string) bool {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		c.logger.Debug("Channel not connected, message dropped")
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, []byte(message)); err != nil {
		c.logger.Warn("Failed to write to channel", zap.Error(err))
		return false
	}
	return true
}

// setStateLocked must be called with mu held.
func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	close(c.stateCh)
	c.stateCh = make(chan struct{})
	c.stateGauge.Set(context.Background(), float64(s))
}

// run owns one connection attempt: dial, then read until failure.
func (c *Client) run(ctx context.Context, gen uint64) {
	conn, err := c.dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("Failed to connect channel", zap.String("url", c.url), zap.Error(err))
		c.handleError(gen, nil, err)
		return
	}

	if !c.handleOpen(ctx, gen, conn) {
		_ = conn.CloseNow()
		return
	}

	c.readLoop(ctx, gen, conn)
}

func (c *Client) dial(ctx context.Context) (Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	header := http.Header{}
	for key, values := range c.headers {
		header[key] = append([]string(nil), values...)
	}

	// Authorization from the provider overrides a custom header.
	if c.authProvider != nil {
		auth, err := c.authProvider(dialCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to get authorization: %w", err)
		}
		if auth != "" {
			header.Set("Authorization", auth)
		}
	}

	conn, err := c.dialer.Dial(dialCtx, c.url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to channel: %w", err)
	}
	conn.SetReadLimit(c.readLimit)
	return conn, nil
}

func (c *Client) readLoop(ctx context.Context, gen uint64, conn Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if status := websocket.CloseStatus(err); status != -1 {
				c.logger.Info("Channel closed by peer",
					zap.String("url", c.url),
					zap.Int("status", int(status)))
				c.handleClose(gen, nil)
			} else {
				c.logger.Error("Failed to read from channel", zap.Error(err))
				c.handleError(gen, conn, err)
			}
			return
		}

		c.handleFrame(ctx, data)
	}
}

func (c *Client) handleOpen(ctx context.Context, gen uint64, conn Conn) bool {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return false
	}
	c.conn = conn
	c.retryCount = 0
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	c.logger.Info("Channel connected", zap.String("url", c.url))
	if c.monitor != nil {
		c.monitor.OnConnect(ctx, c)
	}
	return true
}

// handleError force-closes the socket, then runs the close path.
func (c *Client) handleError(gen uint64, conn Conn, err error) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateErroring)
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.CloseNow()
	}
	c.handleClose(gen, err)
}

// handleClose marks the client disconnected and schedules the next
// reconnect, or gives up once maxRetries reconnects have failed in a row.
func (c *Client) handleClose(gen uint64, cause error) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.setStateLocked(StateDisconnected)

	retry := c.retryCount < c.maxRetries
	var delay time.Duration
	if retry {
		c.retryCount++
		delay = c.baseDelay * time.Duration(c.retryCount)
		c.timer = c.clock.AfterFunc(delay, c.reconnect)
	}
	attempt := c.retryCount
	c.mu.Unlock()

	ctx := context.Background()
	if c.monitor != nil {
		c.monitor.OnDisconnect(ctx, c, cause)
	}

	if retry {
		c.logger.Info("Scheduling channel reconnect",
			zap.String("url", c.url),
			zap.Int("attempt", attempt),
			zap.Int("max", c.maxRetries),
			zap.Duration("delay", delay))
		return
	}

	c.logger.Error("Channel reconnect attempts exhausted",
		zap.String("url", c.url),
		zap.Int("attempts", attempt))
	if c.notifier != nil {
		c.notifier.AddNotification(notify.KindWarning, ExhaustedMessage)
	}
	if c.monitor != nil {
		c.monitor.OnRetriesExhausted(ctx, c)
	}
}

func (c *Client) reconnect() {
	c.mu.Lock()
	c.timer = nil
	c.mu.Unlock()

	c.reconnects.Add(context.Background(), 1)
	if err := c.Connect(); err != nil && !errors.Is(err, ErrClientClosed) {
		c.logger.Error("Failed to reconnect channel", zap.Error(err))
	}
}

// handleFrame decodes one frame and delivers it to every handler under its
// key, in registration order.
func (c *Client) handleFrame(ctx context.Context, data []byte) {
	c.framesIn.Add(ctx, 1)

	env, err := decodeEnvelope(data)
	if err != nil {
		c.malformed.Add(ctx, 1)
		c.logger.Warn("Dropping malformed channel frame",
			zap.Int("size", len(data)),
			zap.Error(err))
		return
	}

	payload := env.Data
	if len(bytes.TrimSpace(payload)) == 0 || bytes.Equal(bytes.TrimSpace(payload), []byte("null")) {
		payload = json.RawMessage(data)
	}

	ev := Event{
		Type:    env.Type,
		Action:  env.Action,
		Payload: payload,
		Raw:     json.RawMessage(data),
	}

	if c.observer != nil {
		c.observer(ev)
	}

	for _, sub := range c.registry.handlers(ev.Key()) {
		c.invoke(ctx, sub, ev)
	}
}

func (c *Client) invoke(ctx context.Context, sub *Subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Channel handler panicked",
				zap.Stringer("key", sub.key),
				zap.Any("panic", r))
		}
	}()

	if err := sub.handler(ctx, ev); err != nil {
		c.logger.Warn("Channel handler failed",
			zap.Stringer("key", sub.key),
			zap.Error(err))
	}
}
