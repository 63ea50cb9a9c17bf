package node

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/nfrund/conftimeout/internal/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutbox_PublishesInOrder(t *testing.T) {
	bus := newMockBus()
	o := newOutbox(bus, slog.Default())
	defer o.close()

	for i := 0; i < 100; i++ {
		o.push(pubsub.Message{Topic: "t", Payload: []byte(fmt.Sprint(i))}, nil)
	}
	o.flush()

	msgs := bus.onTopic("t")
	require.Len(t, msgs, 100)
	for i, msg := range msgs {
		assert.Equal(t, fmt.Sprint(i), string(msg.Payload))
	}
}

func TestOutbox_PublishedCallbackOnlyOnSuccess(t *testing.T) {
	bus := newMockBus()
	o := newOutbox(bus, slog.Default())
	defer o.close()

	var calls atomic.Int32
	o.push(pubsub.Message{Topic: "t"}, func() { calls.Add(1) })
	o.flush()
	assert.EqualValues(t, 1, calls.Load())

	bus.mu.Lock()
	bus.publishErr = errors.New("bus closed")
	bus.mu.Unlock()
	o.push(pubsub.Message{Topic: "t"}, func() { calls.Add(1) })
	o.flush()
	assert.EqualValues(t, 1, calls.Load())
}

func TestOutbox_CloseDrainsThenDrops(t *testing.T) {
	bus := newMockBus()
	o := newOutbox(bus, slog.Default())

	o.push(pubsub.Message{Topic: "t", Payload: []byte("a")}, nil)
	o.push(pubsub.Message{Topic: "t", Payload: []byte("b")}, nil)
	o.close()
	assert.Len(t, bus.onTopic("t"), 2)

	o.push(pubsub.Message{Topic: "t", Payload: []byte("c")}, nil)
	o.flush()
	o.close()
	assert.Len(t, bus.onTopic("t"), 2)
}
