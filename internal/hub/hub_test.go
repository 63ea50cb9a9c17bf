package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub()
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h, cancel
}

func next(t *testing.T, s *Subscriber) []byte {
	t.Helper()
	select {
	case frame, ok := <-s.Send:
		require.True(t, ok, "subscriber channel closed")
		return frame
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func TestHub_Broadcast(t *testing.T) {
	h, _ := startHub(t)

	a := h.Subscribe()
	b := h.Subscribe()
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, 2, h.Count())

	assert.True(t, h.Publish([]byte("fired")))

	assert.Equal(t, "fired", string(next(t, a)))
	assert.Equal(t, "fired", string(next(t, b)))
}

func TestHub_Leave(t *testing.T) {
	h, _ := startHub(t)

	s := h.Subscribe()
	h.Leave(s)

	_, ok := <-s.Send
	assert.False(t, ok)
	assert.Equal(t, 0, h.Count())
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	h, _ := startHub(t)

	slow := h.Subscribe()
	for i := 0; i <= DefaultSendBuffer; i++ {
		h.Broadcast <- []byte("x")
	}

	assert.Eventually(t, func() bool { return h.Count() == 0 }, time.Second, 10*time.Millisecond)

	drained := 0
	for range slow.Send {
		drained++
	}
	assert.Equal(t, DefaultSendBuffer, drained)
}

func TestHub_StopClosesSubscribers(t *testing.T) {
	h, cancel := startHub(t)

	s := h.Subscribe()
	cancel()
	<-h.Done()

	_, ok := <-s.Send
	assert.False(t, ok)
	assert.False(t, h.Publish([]byte("late")))
	assert.Nil(t, h.Subscribe())
	assert.Equal(t, 0, h.Count())
}
