// Package bus is the in-process pub/sub fabric connecting the registry to
// the push-stream fan-out, the local presentation loop, and the optional
// remote channels.
package bus

import (
	"strings"
	"sync"
)

// subscriberBuffer is the per-subscription channel depth. Publishing never
// blocks: a subscriber that falls this far behind starts losing events.
const subscriberBuffer = 100

// Event pairs a topic with its payload. Payload types are declared next to
// their topic constants in topics.go.
type Event struct {
	Topic   string
	Payload any
}

// Subscription is a live feed of events whose topic matches a prefix.
type Subscription struct {
	prefix string
	ch     chan Event
}

// Ch returns the receive side of the subscription.
func (s *Subscription) Ch() <-chan Event {
	return s.ch
}

func (s *Subscription) matches(topic string) bool {
	return s.prefix == "" || strings.HasPrefix(topic, s.prefix)
}

// Bus fans events out to prefix-matched subscribers. The zero value is not
// usable; construct with New.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func New() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a feed for topics starting with prefix. An empty
// prefix receives everything.
func (b *Bus) Subscribe(prefix string) *Subscription {
	sub := &Subscription{prefix: prefix, ch: make(chan Event, subscriberBuffer)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe detaches the feed and closes its channel. Unsubscribing twice
// is harmless.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

// Publish delivers the event to every matching subscriber without blocking.
// A full subscriber buffer drops the event for that subscriber only.
func (b *Bus) Publish(topic string, payload any) {
	evt := Event{Topic: topic, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if !sub.matches(topic) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
		}
	}
}

// SubscriberCount reports the number of attached subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
