// Package pubsub is the in-process message bus. Inbound messages reach the
// timeout node through it and every emitted event leaves through it.
package pubsub

import (
	"context"
)

// Message is what travels on the bus.
type Message struct {
	// Topic is the bus topic, e.g. "conftimeout.input".
	Topic string
	// Payload is the raw body, usually JSON.
	Payload []byte
	// Metadata carries string attributes such as the origin of the message.
	Metadata map[string]string
}

// Handler processes one received message.
type Handler func(ctx context.Context, msg Message) error

// Publisher sends messages to the bus.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscriber receives messages from the bus.
type Subscriber interface {
	// Subscribe starts delivering messages for topic to handler in the
	// background and returns once the subscription is active. Delivery stops
	// when ctx is cancelled or the subscriber is closed.
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

// Bus is both ends of the message bus.
type Bus interface {
	Publisher
	Subscriber
}
