package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/kbukum/dagflow/logger"
	"github.com/kbukum/dagflow/simulator"
)

// DefaultTopic is the topic simulation events are published on.
const DefaultTopic = "dagflow.simulation"

// Metadata keys set on every message.
const (
	MetaKind  = "event_kind"
	MetaRunID = "run_id"
	MetaNode  = "node"
	MetaSeq   = "seq"
)

// Bus publishes and subscribes to simulation events.
type Bus struct {
	pubsub *gochannel.GoChannel
	topic  string
	buffer int
	log    *logger.Logger
}

var _ simulator.EventSink = (*Bus)(nil)

// Option configures a Bus.
type Option func(*Bus)

// WithTopic overrides DefaultTopic.
func WithTopic(topic string) Option { return func(b *Bus) { b.topic = topic } }

// WithBuffer sets the capacity of subscriber channels.
func WithBuffer(n int) Option { return func(b *Bus) { b.buffer = n } }

// WithLogger sets the bus logger. Watermill's own logs go through it too.
func WithLogger(l *logger.Logger) Option { return func(b *Bus) { b.log = l } }

// NewBus creates a Bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		topic:  DefaultTopic,
		buffer: 64,
		log:    logger.Get("events"),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.pubsub = gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            int64(b.buffer),
		BlockPublishUntilSubscriberAck: true,
	}, NewLoggerAdapter(b.log))
	return b
}

// Topic returns the topic the bus publishes on.
func (b *Bus) Topic() string { return b.topic }

// Publish sends e to every current subscriber.
func (b *Bus) Publish(ctx context.Context, e simulator.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", e.Kind, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetaKind, string(e.Kind))
	msg.Metadata.Set(MetaRunID, e.RunID)
	msg.Metadata.Set(MetaSeq, strconv.Itoa(e.Seq))
	if e.Node != "" {
		msg.Metadata.Set(MetaNode, string(e.Node))
	}
	if err := b.pubsub.Publish(b.topic, msg); err != nil {
		return fmt.Errorf("events: publish %s: %w", e.Kind, err)
	}
	return nil
}

// Subscribe returns a channel receiving every event published after the
// call. The channel is closed when ctx is done or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context) (<-chan simulator.Event, error) {
	msgs, err := b.pubsub.Subscribe(ctx, b.topic)
	if err != nil {
		return nil, fmt.Errorf("events: subscribe: %w", err)
	}

	out := make(chan simulator.Event, b.buffer)
	go func() {
		defer close(out)
		for msg := range msgs {
			var e simulator.Event
			if err := json.Unmarshal(msg.Payload, &e); err != nil {
				b.log.Warn("dropping undecodable event", logger.MergeWithError(logger.Fields("message_uuid", msg.UUID), err))
				msg.Ack()
				continue
			}
			select {
			case out <- e:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()
	return out, nil
}

// Close stops the bus and closes every subscription.
func (b *Bus) Close() error { return b.pubsub.Close() }
