// Package notify implements the notification sink: a process-wide queue of
// user-visible notices that expire on their own after a fixed time-to-live.
//
// A Queue is constructed once by the application and injected into the
// components that report to it; there is no package-level instance.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tsarna/homelink/pkg/homelink/clock"
	"go.uber.org/zap"
)

// DefaultTTL is how long a notification stays in the queue.
const DefaultTTL = 5 * time.Second

// Kind classifies a notification for presentation.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
)

// Notification is a single user-visible notice.
type Notification struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Sink is the consumer-side view of the queue. Components that only push
// notices depend on this rather than on *Queue.
type Sink interface {
	AddNotification(kind Kind, text string) Notification
}

// Listener is called synchronously for every notification added.
type Listener func(Notification)

// Queue holds live notifications. It is safe for concurrent use.
type Queue struct {
	mu        sync.Mutex
	clock     clock.Clock
	ttl       time.Duration
	logger    *zap.Logger
	items     []Notification
	listeners []Listener
}

// NewQueue creates an empty queue using the real clock and DefaultTTL.
func NewQueue() *Queue {
	return &Queue{
		clock:  clock.Real{},
		ttl:    DefaultTTL,
		logger: zap.NewNop(),
	}
}

// WithClock replaces the time source. Intended for tests.
func (q *Queue) WithClock(c clock.Clock) *Queue {
	if c != nil {
		q.clock = c
	}
	return q
}

// WithLogger sets the logger.
func (q *Queue) WithLogger(logger *zap.Logger) *Queue {
	if logger != nil {
		q.logger = logger
	}
	return q
}

// WithListener registers a listener that sees every new notification.
func (q *Queue) WithListener(l Listener) *Queue {
	if l != nil {
		q.mu.Lock()
		q.listeners = append(q.listeners, l)
		q.mu.Unlock()
	}
	return q
}

// AddNotification appends a notification and schedules its removal.
func (q *Queue) AddNotification(kind Kind, text string) Notification {
	n := Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Text:      text,
		CreatedAt: q.clock.Now(),
	}

	q.mu.Lock()
	q.items = append(q.items, n)
	listeners := make([]Listener, len(q.listeners))
	copy(listeners, q.listeners)
	q.mu.Unlock()

	q.logger.Debug("Notification added",
		zap.String("id", n.ID),
		zap.String("kind", string(kind)),
		zap.String("text", text))

	q.clock.AfterFunc(q.ttl, func() { q.Remove(n.ID) })

	for _, l := range listeners {
		l(n)
	}

	return n
}

// Add is shorthand for AddNotification.
func (q *Queue) Add(kind Kind, text string) Notification {
	return q.AddNotification(kind, text)
}

func (q *Queue) Success(text string) Notification { return q.AddNotification(KindSuccess, text) }
func (q *Queue) Error(text string) Notification { return q.AddNotification(KindError, text) }
func (q *Queue) Warning(text string) Notification { return q.AddNotification(KindWarning, text) }
func (q *Queue) Info(text string) Notification { return q.AddNotification(KindInfo, text) }

// Remove deletes the notification with the given id, if still present.
func (q *Queue) Remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, n := range q.items {
		if n.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}

// List returns a snapshot of the live notifications, oldest first.
func (q *Queue) List() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Notification, len(q.items))
	copy(out, q.items)
	return out
}

// Len returns the number of live notifications.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
