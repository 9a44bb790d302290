package channel

import (
	"context"
	"encoding/json"
	"sync"
)

// Key identifies a subscription. Group matches the event "type" field and
// Type matches its "action" field, empty when the event has none.
type Key struct {
	Group string
	Type  string
}

func (k Key) String() string {
	if k.Type == "" {
		return k.Group
	}
	return k.Group + "/" + k.Type
}

// Event is an inbound frame after decoding.
type Event struct {
	Type   string
	Action string
	// Payload is the "data" field, or the whole frame when data is absent
	// or null.
	Payload json.RawMessage
	Raw     json.RawMessage
}

// Key returns the dispatch key of the event.
func (e Event) Key() Key {
	return Key{Group: e.Type, Type: e.Action}
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Handler receives events for the key it was subscribed under.
type Handler func(ctx context.Context, ev Event) error

// Subscription is the handle returned by Subscribe. Subscribing the same
// handler twice yields two handles, each delivered to and removed
// separately.
type Subscription struct {
	key     Key
	handler Handler
}

func (s *Subscription) Key() Key { return s.key }

type registry struct {
	mu   sync.RWMutex
	subs map[Key][]*Subscription
}

func newRegistry() *registry {
	return &registry{subs: make(map[Key][]*Subscription)}
}

func (r *registry) add(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.key] = append(r.subs[sub.key], sub)
}

// remove drops exactly sub and evicts the key once it has no handlers.
func (r *registry) remove(sub *Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.subs[sub.key]
	for i, s := range list {
		if s != sub {
			continue
		}
		list = append(list[:i:i], list[i+1:]...)
		if len(list) == 0 {
			delete(r.subs, sub.key)
		} else {
			r.subs[sub.key] = list
		}
		return true
	}
	return false
}

// handlers returns a copy of the subscriptions under key, in registration
// order.
func (r *registry) handlers(key Key) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.subs[key]
	if len(list) == 0 {
		return nil
	}
	out := make([]*Subscription, len(list))
	copy(out, list)
	return out
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *registry) count(key Key) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[key])
}
