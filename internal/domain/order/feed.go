package order

import (
	"context"
	"sync"
	"time"
)

// EventKind names the mutation an Event reports.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventStatus  EventKind = "status"
	EventPayment EventKind = "payment"
	EventEta     EventKind = "eta"
	EventRider   EventKind = "rider"
)

// Event is a change notification for one order. Subscribers re-query the
// order for its full state.
type Event struct {
	Kind          EventKind     `json:"kind"`
	OrderID       string        `json:"orderId"`
	Code          string        `json:"code"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	CustomerID    string        `json:"customerId,omitempty"`
	At            time.Time     `json:"at"`
}

// NewEvent describes the current state of o.
func NewEvent(kind EventKind, o *Order) Event {
	return Event{
		Kind:          kind,
		OrderID:       o.ID,
		Code:          o.Code,
		Status:        o.Status,
		PaymentStatus: o.Payment.Status,
		CustomerID:    o.CustomerID,
		At:            o.UpdatedAt,
	}
}

// Publisher broadcasts order events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

const subscriberBuffer = 16

// Broker fans events out to in-process subscribers. Slow subscribers lose
// events rather than blocking publishers.
type Broker struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

var _ Publisher = (*Broker)(nil)

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[chan Event]struct{})}
}

// Publish delivers e to every subscriber with buffer space.
func (b *Broker) Publish(_ context.Context, e Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of events that closes when ctx is done.
func (b *Broker) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Subscribers returns the number of active subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
