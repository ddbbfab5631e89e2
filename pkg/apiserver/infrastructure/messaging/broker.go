package messaging

import (
	"context"
	"errors"
)

// ErrBrokerClosed is returned by operations on a broker that has been closed.
var ErrBrokerClosed = errors.New("broker closed")

// Message is one delivery on a topic. Key is the routing key (the correlation id for
// both calculator topics); Header carries propagation metadata such as trace context.
type Message struct {
	// ID is transport specific (partition:offset, stream entry id, ...). It may be empty.
	ID      string
	Topic   string
	Key     string
	Payload []byte
	Header  map[string]string
}

// Publisher sends keyed messages to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// Broker is a keyed pub/sub abstraction with consumer-group subscriptions.
// Implementations: Kafka, Redis Streams, NATS, Memory.
type Broker interface {
	Publisher
	// Subscribe joins group on topic. Every group receives each message; members of one group share it.
	Subscribe(ctx context.Context, topic, group string, opts ...SubscribeOption) (Subscription, error)
	// Ping checks connectivity to the underlying system.
	Ping(ctx context.Context) error
	// Close releases any underlying resources.
	Close(ctx context.Context) error
}

// Subscription wraps a streaming subscription to a topic.
type Subscription interface {
	// C returns a channel that yields messages. It is closed when the subscription ends.
	C() <-chan Message
	// Err returns a channel delivering terminal errors (optional; may be nil).
	Err() <-chan error
	// Ack marks messages as processed so they are not redelivered to the group.
	Ack(ctx context.Context, msgs ...Message) error
	// Unsubscribe cancels the subscription and frees resources.
	Unsubscribe(ctx context.Context) error
}

// MessageCodec defines encode/decode for strongly-typed messages.
type MessageCodec[T any] interface {
	Encode(T) ([]byte, error)
	Decode([]byte) (T, error)
}

// SubscribeOptions tunes a subscription.
type SubscribeOptions struct {
	// FromLatest makes a group that has no committed position start at the end of the topic.
	FromLatest bool
	// Buffer is the size of the delivery channel.
	Buffer int
}

// SubscribeOption mutates SubscribeOptions.
type SubscribeOption func(*SubscribeOptions)

// FromLatest starts new groups at the tail of the topic instead of its beginning.
func FromLatest() SubscribeOption {
	return func(o *SubscribeOptions) { o.FromLatest = true }
}

// WithBuffer sets the delivery channel size.
func WithBuffer(n int) SubscribeOption {
	return func(o *SubscribeOptions) {
		if n > 0 {
			o.Buffer = n
		}
	}
}

const defaultSubscriptionBuffer = 128

func buildSubscribeOptions(opts []SubscribeOption) SubscribeOptions {
	o := SubscribeOptions{Buffer: defaultSubscriptionBuffer}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
