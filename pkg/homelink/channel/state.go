package channel

import "context"

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateErroring
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateErroring:
		return "erroring"
	default:
		return "unknown"
	}
}

// Monitor receives connection lifecycle events. Calls are made without the
// client lock held, so a monitor may call back into the client.
type Monitor interface {
	OnConnect(ctx context.Context, client *Client)
	// OnDisconnect is called for every lost or failed connection; err is nil
	// for a clean close by the peer.
	OnDisconnect(ctx context.Context, client *Client, err error)
	// OnRetriesExhausted is called once no further reconnect is scheduled.
	OnRetriesExhausted(ctx context.Context, client *Client)
}

// FrameObserver sees every well-formed event before it is dispatched.
type FrameObserver func(ev Event)
