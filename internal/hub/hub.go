package hub

import (
	"context"
	"log/slog"
)

// DefaultSendBuffer is the Send capacity given to subscribers by NewSubscriber.
const DefaultSendBuffer = 64

// Subscriber is one listener on the hub, typically a websocket connection.
type Subscriber struct {
	// Send receives every broadcast frame. The hub closes it on unregister,
	// on shutdown, or when the subscriber falls behind.
	Send chan []byte
}

// NewSubscriber creates a subscriber with the default buffer.
func NewSubscriber() *Subscriber {
	return &Subscriber{Send: make(chan []byte, DefaultSendBuffer)}
}

// Hub fans timeout and status events out to every subscriber.
type Hub struct {
	subscribers map[*Subscriber]bool

	// Broadcast takes frames to deliver to all subscribers.
	Broadcast chan []byte

	Register   chan *Subscriber
	Unregister chan *Subscriber

	count chan chan int
	done  chan struct{}
}

// NewHub creates a hub; Run must be started before it is used.
func NewHub() *Hub {
	return &Hub{
		Broadcast:   make(chan []byte, DefaultSendBuffer),
		Register:    make(chan *Subscriber),
		Unregister:  make(chan *Subscriber),
		subscribers: make(map[*Subscriber]bool),
		count:       make(chan chan int),
		done:        make(chan struct{}),
	}
}

// Run processes hub traffic until ctx is cancelled, then closes every
// subscriber.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for subscriber := range h.subscribers {
				close(subscriber.Send)
				delete(h.subscribers, subscriber)
			}
			slog.Debug("Hub stopped")
			return

		case subscriber := <-h.Register:
			h.subscribers[subscriber] = true
			slog.Info("New event subscriber registered", "total_subscribers", len(h.subscribers))

		case subscriber := <-h.Unregister:
			if _, ok := h.subscribers[subscriber]; ok {
				delete(h.subscribers, subscriber)
				close(subscriber.Send)
				slog.Info("Event subscriber unregistered", "total_subscribers", len(h.subscribers))
			}

		case reply := <-h.count:
			reply <- len(h.subscribers)

		case frame := <-h.Broadcast:
			for subscriber := range h.subscribers {
				select {
				case subscriber.Send <- frame:
				default:
					// Buffer full: the reader is stuck or gone.
					close(subscriber.Send)
					delete(h.subscribers, subscriber)
					slog.Warn("Unregistering slow event subscriber", "total_subscribers", len(h.subscribers))
				}
			}
		}
	}
}

// Publish queues frame for broadcast without blocking. It reports false when
// the hub is stopped or its queue is full.
func (h *Hub) Publish(frame []byte) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.Broadcast <- frame:
		return true
	default:
		return false
	}
}

// Subscribe registers a new subscriber. It returns nil once the hub stopped.
func (h *Hub) Subscribe() *Subscriber {
	s := NewSubscriber()
	select {
	case h.Register <- s:
		return s
	case <-h.done:
		return nil
	}
}

// Leave unregisters s. It is a no-op after the hub stopped.
func (h *Hub) Leave(s *Subscriber) {
	select {
	case h.Unregister <- s:
	case <-h.done:
	}
}

// Count returns the current number of subscribers, or 0 once stopped.
func (h *Hub) Count() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

// Done is closed when Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}
