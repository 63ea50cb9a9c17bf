// Package node hosts the timeout registry on the message bus. It decides for
// every inbound message whether it cancels or arms a countdown, and turns the
// registry's output into bus messages, websocket frames and metrics.
package node

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/conftimeout/internal/config"
	"github.com/nfrund/conftimeout/internal/hub"
	"github.com/nfrund/conftimeout/internal/module"
	"github.com/nfrund/conftimeout/internal/pubsub"
	"github.com/nfrund/conftimeout/internal/watch"
)

// Metadata keys set on outbound messages.
const (
	MetaKind    = "kind"
	MetaWatchID = "watch_id"

	KindTimeout   = "timeout"
	KindForwarded = "forwarded"
)

// Config is the node's view of the timeout settings.
type Config struct {
	CancelMessage        string
	DefaultTimeout       time.Duration
	TimeoutMessage       string
	Qualifier            string
	Debug                bool
	ForwardMatchedCancel bool
}

// ConfigFrom converts the loaded configuration.
func ConfigFrom(c config.TimeoutConfig) Config {
	return Config{
		CancelMessage:        c.CancelMessage,
		DefaultTimeout:       c.DefaultDuration(),
		TimeoutMessage:       c.TimeoutMessage,
		Qualifier:            c.Qualifier,
		Debug:                c.Debug,
		ForwardMatchedCancel: c.ForwardMatchedCancel,
	}
}

// FiredEvent is the body published on TopicOutput when a countdown fires.
type FiredEvent struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// StatusEvent is the body published on EventStatus. Seq increases with every
// emission so consumers can discard reordered deliveries.
type StatusEvent struct {
	Seq         uint64      `json:"seq"`
	ActiveCount int         `json:"activeCount"`
	State       watch.State `json:"state"`
	Text        string      `json:"text"`
}

// TraceEvent is one debug trace line.
type TraceEvent struct {
	Line string    `json:"line"`
	Time time.Time `json:"time"`
}

// ErrorEvent reports a countdown that could not be armed.
type ErrorEvent struct {
	Topic string `json:"topic"`
	Error string `json:"error"`
}

// frame is what websocket listeners receive.
type frame struct {
	Type    string       `json:"type"`
	Topic   string       `json:"topic,omitempty"`
	Payload any          `json:"payload,omitempty"`
	WatchID string       `json:"watchId,omitempty"`
	Status  *StatusEvent `json:"status,omitempty"`
}

// Dependencies holds the services the node needs.
type Dependencies struct {
	Publisher  pubsub.Publisher
	Subscriber pubsub.Subscriber
	// Hub is optional; without it no websocket frames are produced.
	Hub *hub.Hub
}

// Node is the timeout module.
type Node struct {
	module.BaseModule

	cfg        Config
	publisher  pubsub.Publisher
	subscriber pubsub.Subscriber
	hub        *hub.Hub
	registry   *watch.Registry
	out        *outbox
	logger     *slog.Logger
	seq        atomic.Uint64
}

var _ module.Module = (*Node)(nil)

// New creates a node with an empty registry. Extra options are passed to the
// registry, after the timeout payload option.
func New(deps Dependencies, cfg Config, opts ...watch.Option) *Node {
	n := &Node{
		cfg:        cfg,
		publisher:  deps.Publisher,
		subscriber: deps.Subscriber,
		hub:        deps.Hub,
		logger:     slog.Default().With("service", "conftimeout"),
	}
	n.out = newOutbox(deps.Publisher, n.logger)

	regOpts := append([]watch.Option{
		watch.WithTimeoutPayload(cfg.TimeoutMessage),
		watch.WithLogger(n.logger),
	}, opts...)
	n.registry = watch.NewRegistry(&sink{node: n}, regOpts...)
	return n
}

// Name returns the module name.
func (n *Node) Name() string {
	return ModuleName
}

// Registry exposes the underlying registry.
func (n *Node) Registry() *watch.Registry {
	return n.registry
}

// Boot subscribes to the input topic and mounts the HTTP routes.
func (n *Node) Boot(ctx context.Context, g *echo.Group) error {
	if err := RegisterTopics(); err != nil {
		return fmt.Errorf("register topics: %w", err)
	}

	if err := n.subscriber.Subscribe(ctx, TopicInput.Name(), n.HandleMessage); err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicInput.Name(), err)
	}

	if g != nil {
		h := &handler{node: n}
		g.GET("/status", h.status)
		g.POST("/messages", h.postMessage)
	}

	n.logger.Info("Timeout node booted",
		"input", TopicInput.Name(),
		"output", TopicOutput.Name(),
		"default_timeout", n.cfg.DefaultTimeout,
		"qualifier", n.cfg.Qualifier,
		"debug", n.cfg.Debug)
	return nil
}

// Shutdown clears every countdown without firing, then publishes whatever
// is still queued, the final idle status included.
func (n *Node) Shutdown(ctx context.Context) error {
	n.logger.Info("Shutting down timeout node", "active", n.registry.Count())
	n.registry.Shutdown()
	n.out.close()
	return nil
}

// HandleMessage applies one inbound message to the registry.
func (n *Node) HandleMessage(ctx context.Context, msg pubsub.Message) error {
	in := ParseInbound(msg.Payload)

	if in.IsCancel(n.cfg.CancelMessage) {
		cancelled := n.registry.Cancel(in.Topic)
		if cancelled {
			eventsTotal.WithLabelValues(kindCancelled).Inc()
		}
		if !cancelled || n.cfg.ForwardMatchedCancel {
			n.forward(msg)
		}
		return nil
	}

	d, source := ResolveTimeout(in.Timeout, n.cfg.Qualifier, n.cfg.DefaultTimeout)
	armed, err := n.registry.Register(in.Topic, d)
	if err != nil {
		eventsTotal.WithLabelValues(kindScheduleError).Inc()
		n.reportError(in.Topic, err)
		return nil
	}
	if !armed {
		eventsTotal.WithLabelValues(kindDuplicate).Inc()
		return nil
	}

	eventsTotal.WithLabelValues(kindRegistered).Inc()
	timeoutSeconds.WithLabelValues(string(source)).Observe(d.Seconds())
	return nil
}

// forward queues msg unchanged for the output topic.
func (n *Node) forward(msg pubsub.Message) {
	metadata := make(map[string]string, len(msg.Metadata)+1)
	for k, v := range msg.Metadata {
		metadata[k] = v
	}
	metadata[MetaKind] = KindForwarded

	n.out.push(pubsub.Message{
		Topic:    TopicOutput.Name(),
		Payload:  msg.Payload,
		Metadata: metadata,
	}, func() {
		eventsTotal.WithLabelValues(kindForwarded).Inc()
	})
}

func (n *Node) reportError(topic string, err error) {
	n.logger.Error("Failed to arm countdown", "topic", topic, "error", err)
	n.pushEvent(EventError.Name(), func() (pubsub.Message, error) {
		return pubsub.Encode(EventError, ErrorEvent{Topic: topic, Error: err.Error()})
	})
}

// pushEvent queues a typed event built by encode.
func (n *Node) pushEvent(name string, encode func() (pubsub.Message, error)) {
	msg, err := encode()
	if err != nil {
		n.logger.Error("Failed to encode event", "topic", name, "error", err)
		return
	}
	n.out.push(msg, nil)
}

func (n *Node) broadcast(f frame) {
	if n.hub == nil {
		return
	}
	data, err := json.Marshal(f)
	if err != nil {
		n.logger.Error("Failed to marshal websocket frame", "type", f.Type, "error", err)
		return
	}
	if !n.hub.Publish(data) {
		n.logger.Debug("Hub did not accept frame", "type", f.Type)
	}
}

// sink receives the registry's output. It runs on whichever goroutine made
// the change, including timer goroutines, while the registry holds its emit
// lock, so bus messages only go into the outbox.
type sink struct {
	node *Node
}

func (s *sink) Fired(ev watch.Fired) {
	n := s.node
	eventsTotal.WithLabelValues(kindFired).Inc()

	body, err := json.Marshal(FiredEvent{Topic: ev.Topic, Payload: ev.Payload})
	if err != nil {
		n.logger.Error("Failed to marshal timeout event", "topic", ev.Topic, "error", err)
		return
	}

	n.logger.Info("Timeout fired", "topic", ev.Topic, "watch_id", ev.WatchID, "timeout", ev.Timeout)
	n.out.push(pubsub.Message{
		Topic:   TopicOutput.Name(),
		Payload: body,
		Metadata: map[string]string{
			MetaKind:    KindTimeout,
			MetaWatchID: ev.WatchID,
		},
	}, nil)

	n.broadcast(frame{Type: KindTimeout, Topic: ev.Topic, Payload: ev.Payload, WatchID: ev.WatchID})
}

func (s *sink) Status(st watch.Status) {
	n := s.node
	activeWatches.Set(float64(st.ActiveCount))

	ev := StatusEvent{
		Seq:         n.seq.Add(1),
		ActiveCount: st.ActiveCount,
		State:       st.State,
		Text:        st.Text(),
	}
	n.pushEvent(EventStatus.Name(), func() (pubsub.Message, error) {
		return pubsub.Encode(EventStatus, ev)
	})

	n.broadcast(frame{Type: "status", Status: &ev})
}

func (s *sink) Trace(line string) {
	n := s.node
	if !n.cfg.Debug {
		return
	}
	n.logger.Debug(line)
	ev := TraceEvent{Line: line, Time: time.Now().UTC()}
	n.pushEvent(EventTrace.Name(), func() (pubsub.Message, error) {
		return pubsub.Encode(EventTrace, ev)
	})
}
