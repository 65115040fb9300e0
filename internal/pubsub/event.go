package pubsub

import "context"

type EventKind int

const (
	EventSubscribed EventKind = iota + 1
	EventMessage
	EventUnsubscribed
)

func (k EventKind) String() string {
	switch k {
	case EventSubscribed:
		return "subscribed"
	case EventMessage:
		return "message"
	case EventUnsubscribed:
		return "unsubscribed"
	default:
		return "unknown"
	}
}

// Event is one lifecycle transition or message for a channel. Payload is
// set only for EventMessage.
type Event struct {
	Kind    EventKind
	Channel string
	Payload []byte
}

// Queue is a consumer handle. Events are delivered in order; a full queue
// blocks the sender until the consumer drains it or the sender's context
// ends. Nothing is dropped.
type Queue struct {
	ch chan Event
}

func NewQueue(capacity int) *Queue {
	return &Queue{ch: make(chan Event, max(capacity, 0))}
}

func (q *Queue) Events() <-chan Event {
	return q.ch
}

func (q *Queue) deliver(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
