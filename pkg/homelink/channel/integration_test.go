package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// TestWebsocketRoundTrip runs the client against a real websocket server
// that drops the first connection after one event.
func TestWebsocketRoundTrip(t *testing.T) {
	var accepts int32
	received := make(chan string, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" || r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		n := atomic.AddInt32(&accepts, 1)

		msg := `{"type":"device","action":"update","data":{"n":` + strconv.Itoa(int(n)) + `}}`
		if err := conn.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
			return
		}

		if n == 1 {
			conn.Close(websocket.StatusGoingAway, "restarting")
			return
		}

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			received <- string(data)
		}
	}))
	defer srv.Close()

	client, err := NewClient().
		WithURL("ws" + strings.TrimPrefix(srv.URL, "http") + "/ws").
		WithAuthorization("Bearer tok").
		WithBaseDelay(10 * time.Millisecond).
		WithLogger(zaptest.NewLogger(t)).
		Build()
	require.NoError(t, err)
	defer client.Close()

	events := make(chan Event, 4)
	client.Subscribe("device", "update", collect(events))

	require.NoError(t, client.Connect())

	first := receive(t, events)
	assert.JSONEq(t, `{"n":1}`, string(first.Payload))

	second := receive(t, events)
	assert.JSONEq(t, `{"n":2}`, string(second.Payload))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.AwaitConnected(ctx))
	assert.Equal(t, 0, client.RetryCount())
	assert.Equal(t, int32(2), atomic.LoadInt32(&accepts))

	require.True(t, client.Send(`{"type":"ping"}`))
	select {
	case msg := <-received:
		assert.Equal(t, `{"type":"ping"}`, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive message")
	}

	_ = client.Close()
	assert.Equal(t, StateDisconnected, client.State())
	assert.ErrorIs(t, client.Connect(), ErrClientClosed)
}
