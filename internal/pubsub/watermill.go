package pubsub

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// metaKeyTopic carries Message.Topic through watermill metadata.
const metaKeyTopic = "bus_topic"

// DefaultBufferSize is the per-subscriber output buffer of the GoChannel.
const DefaultBufferSize = 256

// WatermillBridge implements Bus on top of watermill's in-memory GoChannel.
type WatermillBridge struct {
	pub    message.Publisher
	sub    message.Subscriber
	tracer trace.Tracer
	logger *slog.Logger
}

var _ Bus = (*WatermillBridge)(nil)

// BridgeOption configures a WatermillBridge.
type BridgeOption func(*bridgeOptions)

type bridgeOptions struct {
	tracer     trace.Tracer
	bufferSize int64
	debug      bool
}

// WithTracer records a span for every publish and delivery.
func WithTracer(tracer trace.Tracer) BridgeOption {
	return func(o *bridgeOptions) {
		o.tracer = tracer
	}
}

// WithBufferSize sets the per-subscriber buffer.
func WithBufferSize(n int64) BridgeOption {
	return func(o *bridgeOptions) {
		o.bufferSize = n
	}
}

// WithDebugLogging turns on watermill's own debug output.
func WithDebugLogging(debug bool) BridgeOption {
	return func(o *bridgeOptions) {
		o.debug = debug
	}
}

// NewWatermillBridge creates an in-memory bus.
func NewWatermillBridge(opts ...BridgeOption) *WatermillBridge {
	o := bridgeOptions{
		tracer:     noop.NewTracerProvider().Tracer(tracerName),
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(&o)
	}

	wmLogger := watermill.NewStdLogger(o.debug, false)
	// Publish waits for subscribers to ack, so messages from one publisher
	// reach a subscription in the order they were sent.
	goChannel := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            o.bufferSize,
			BlockPublishUntilSubscriberAck: true,
		},
		wmLogger,
	)

	return &WatermillBridge{
		pub:    goChannel,
		sub:    goChannel,
		tracer: o.tracer,
		logger: slog.Default().With("service", "pubsub"),
	}
}

// toWatermill converts msg into a watermill message with a fresh UUID.
func toWatermill(ctx context.Context, msg Message) *message.Message {
	wmMsg := message.NewMessage(watermill.NewUUID(), msg.Payload)
	for k, v := range msg.Metadata {
		wmMsg.Metadata.Set(k, v)
	}
	wmMsg.Metadata.Set(metaKeyTopic, msg.Topic)
	wmMsg.SetContext(ctx)
	return wmMsg
}

// fromWatermill restores a Message; the reserved topic key is stripped from
// the metadata.
func fromWatermill(wmMsg *message.Message) Message {
	metadata := make(map[string]string, len(wmMsg.Metadata))
	for k, v := range wmMsg.Metadata {
		if k != metaKeyTopic {
			metadata[k] = v
		}
	}
	return Message{
		Topic:    wmMsg.Metadata.Get(metaKeyTopic),
		Payload:  wmMsg.Payload,
		Metadata: metadata,
	}
}

// Publish sends msg on msg.Topic.
func (wb *WatermillBridge) Publish(ctx context.Context, msg Message) error {
	ctx, span := startPublishSpan(ctx, wb.tracer, msg)
	defer span.End()

	if err := wb.pub.Publish(msg.Topic, toWatermill(ctx, msg)); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Subscribe delivers messages for topic to handler on a dedicated goroutine,
// one at a time, acking after each successful handler call.
func (wb *WatermillBridge) Subscribe(ctx context.Context, topic string, handler Handler) error {
	messages, err := wb.sub.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	traced := traceHandler(wb.tracer, handler)

	go func() {
		for wmMsg := range messages {
			msg := fromWatermill(wmMsg)
			if err := traced(ctx, msg); err != nil {
				wb.logger.Error("Failed to handle message",
					"topic", topic,
					"msg_id", wmMsg.UUID,
					"error", err)
				// GoChannel would redeliver a nacked message forever; the
				// handler already reported its error, so drop it.
			}
			wmMsg.Ack()
		}
		wb.logger.Debug("Subscription message loop ended", "topic", topic)
	}()

	return nil
}

// Close shuts the GoChannel down, ending every subscription loop.
func (wb *WatermillBridge) Close() error {
	return wb.pub.Close()
}
