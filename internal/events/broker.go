// Package events fans session events out to live subscribers. Broker is the
// in-process hub; RedisRelay extends it across instances.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const TypePhaseCompleted = "phase_completed"

var ErrBrokerClosed = errors.New("event broker closed")

// Event carries the session projection as pre-encoded JSON so it can cross the
// Redis wire and the SSE stream without re-encoding.
type Event struct {
	Type      string          `json:"type"`
	UserID    string          `json:"userId"`
	SessionID string          `json:"sessionId"`
	Payload   json.RawMessage `json:"payload"`
	At        time.Time       `json:"at"`
	Origin    string          `json:"origin,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type Subscription struct {
	userID string
	ch     chan Event
	once   sync.Once
}

func (s *Subscription) Events() <-chan Event {
	return s.ch
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// Broker delivers events to the subscriptions of the event's user. Slow
// subscribers lose events rather than block publishers.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	closed bool
}

var _ Publisher = (*Broker)(nil)

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broker{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

func (b *Broker) Subscribe(userID string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}
	sub := &Subscription{userID: userID, ch: make(chan Event, b.buffer)}
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[*Subscription]struct{})
	}
	b.subs[userID][sub] = struct{}{}

	log.Debug().Str("userId", userID).Int("subscribers", len(b.subs[userID])).Msg("event subscriber added")
	return sub, nil
}

func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subs[sub.userID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, sub.userID)
	}
	sub.close()
	log.Debug().Str("userId", sub.userID).Msg("event subscriber removed")
}

func (b *Broker) Publish(_ context.Context, event Event) {
	b.Deliver(event)
}

// Deliver hands event to local subscribers only and returns how many received it.
func (b *Broker) Deliver(event Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}
	delivered := 0
	for sub := range b.subs[event.UserID] {
		select {
		case sub.ch <- event:
			delivered++
		default:
			log.Debug().Str("userId", event.UserID).Str("type", event.Type).Msg("event dropped for slow subscriber")
		}
	}
	return delivered
}

func (b *Broker) SubscriberCount(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[userID])
}

// Close ends every subscription. Later Subscribe calls fail with ErrBrokerClosed.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for userID, set := range b.subs {
		for sub := range set {
			sub.close()
		}
		delete(b.subs, userID)
	}
}
