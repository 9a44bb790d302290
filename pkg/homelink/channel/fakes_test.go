package channel

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

var errDial = errors.New("dial refused")

type fakeConn struct {
	frames  chan []byte
	readErr chan error
	done    chan struct{}

	mu        sync.Mutex
	written   []string
	writeErr  error
	closed    bool
	closeNows int
	readLimit int64
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames:  make(chan []byte, 16),
		readErr: make(chan error, 1),
		done:    make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	case <-c.done:
		return 0, nil, net.ErrClosed
	case err := <-c.readErr:
		return 0, nil, err
	case f := <-c.frames:
		return websocket.MessageText, f, nil
	}
}

func (c *fakeConn) Write(_ context.Context, _ websocket.MessageType, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, string(data))
	return nil
}

func (c *fakeConn) shut() {
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

func (c *fakeConn) Close(websocket.StatusCode, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shut()
	return nil
}

func (c *fakeConn) CloseNow() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeNows++
	c.shut()
	return nil
}

func (c *fakeConn) SetReadLimit(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readLimit = n
}

func (c *fakeConn) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

func (c *fakeConn) CloseNows() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeNows
}

// fakeDialer fails the first failFirst dials (all of them when failFirst
// is negative) and hands out fresh fakeConns after that.
type fakeDialer struct {
	mu        sync.Mutex
	dials     int
	failFirst int
	header    http.Header
	conns     []*fakeConn
}

func (d *fakeDialer) Dial(_ context.Context, _ string, header http.Header) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	d.header = header
	if d.failFirst < 0 || d.dials <= d.failFirst {
		return nil, errDial
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) Last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) Header() http.Header {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.header
}

type recordingMonitor struct {
	mu          sync.Mutex
	connects    int
	disconnects []error
	exhausted   int
}

func (m *recordingMonitor) OnConnect(context.Context, *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
}

func (m *recordingMonitor) OnDisconnect(_ context.Context, _ *Client, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects = append(m.disconnects, err)
}

func (m *recordingMonitor) OnRetriesExhausted(context.Context, *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exhausted++
}

func (m *recordingMonitor) Exhausted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exhausted
}

func (m *recordingMonitor) Connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}
