package node

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nfrund/conftimeout/internal/pubsub"
)

// outbox publishes the node's outbound messages one at a time on its own
// goroutine, in the order they were pushed. push never blocks, so registry
// callbacks and the input handler never wait on bus subscribers.
type outbox struct {
	publisher pubsub.Publisher
	logger    *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []outboxItem
	busy   bool
	closed bool
	done   chan struct{}
}

type outboxItem struct {
	msg pubsub.Message
	// published runs after a successful publish. Optional.
	published func()
}

func newOutbox(p pubsub.Publisher, logger *slog.Logger) *outbox {
	o := &outbox{
		publisher: p,
		logger:    logger,
		done:      make(chan struct{}),
	}
	o.cond = sync.NewCond(&o.mu)
	go o.run()
	return o
}

// push queues msg. Messages pushed after close are dropped.
func (o *outbox) push(msg pubsub.Message, published func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		o.logger.Debug("Outbox closed, dropping message", "topic", msg.Topic)
		return
	}
	o.queue = append(o.queue, outboxItem{msg: msg, published: published})
	o.cond.Broadcast()
}

func (o *outbox) run() {
	defer close(o.done)
	for {
		o.mu.Lock()
		for len(o.queue) == 0 && !o.closed {
			o.cond.Wait()
		}
		if len(o.queue) == 0 {
			o.mu.Unlock()
			return
		}
		item := o.queue[0]
		o.queue[0] = outboxItem{}
		o.queue = o.queue[1:]
		o.busy = true
		o.mu.Unlock()

		if err := o.publisher.Publish(context.Background(), item.msg); err != nil {
			o.logger.Error("Failed to publish", "topic", item.msg.Topic, "error", err)
		} else if item.published != nil {
			item.published()
		}

		o.mu.Lock()
		o.busy = false
		o.cond.Broadcast()
		o.mu.Unlock()
	}
}

// flush blocks until everything pushed so far has been handed to the
// publisher.
func (o *outbox) flush() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for len(o.queue) > 0 || o.busy {
		o.cond.Wait()
	}
}

// close publishes what is still queued, then stops the goroutine. Safe to
// call more than once.
func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.cond.Broadcast()
	o.mu.Unlock()
	<-o.done
}
