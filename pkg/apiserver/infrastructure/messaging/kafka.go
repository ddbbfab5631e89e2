package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"k8s.io/klog/v2"
)

// KafkaConfig holds Kafka-specific configuration options.
type KafkaConfig struct {
	Brokers      []string
	ClientID     string
	RequiredAcks int
	WriteTimeout time.Duration
	// DialTimeout bounds Ping.
	DialTimeout time.Duration
	// Dialer is shared by readers and Ping when set.
	Dialer *kafka.Dialer
}

// kafkaWriter is the subset of *kafka.Writer used by the broker.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// kafkaReader is the subset of *kafka.Reader used by a subscription.
type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaBroker implements Broker using Kafka consumer groups.
// Messages are keyed so that every message for one correlation id lands on the same partition.
type KafkaBroker struct {
	cfg    KafkaConfig
	writer kafkaWriter

	newReader func(topic, group string, o SubscribeOptions) kafkaReader

	mu   sync.Mutex
	subs map[*kafkaSub]struct{}
}

// NewKafkaBroker creates a broker with a shared writer. Readers are created per subscription.
func NewKafkaBroker(cfg KafkaConfig) (*KafkaBroker, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers cannot be empty")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "calcbridge"
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &kafka.Dialer{Timeout: cfg.DialTimeout, ClientID: cfg.ClientID, DualStack: true}
	}
	acks := kafka.RequireOne
	switch cfg.RequiredAcks {
	case -1:
		acks = kafka.RequireAll
	case 0:
		acks = kafka.RequireNone
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              1, // Send immediately for low latency
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           acks,
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: true,
	}

	b := &KafkaBroker{
		cfg:    cfg,
		writer: writer,
		subs:   make(map[*kafkaSub]struct{}),
	}
	b.newReader = b.defaultReader
	return b, nil
}

func (b *KafkaBroker) defaultReader(topic, group string, o SubscribeOptions) kafkaReader {
	startOffset := kafka.FirstOffset
	if o.FromLatest {
		startOffset = kafka.LastOffset
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        b.cfg.Brokers,
		Dialer:         b.cfg.Dialer,
		Topic:          topic,
		GroupID:        group,
		StartOffset:    startOffset,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0, // Disable auto-commit, we commit manually on Ack
	})
}

// Publish writes a keyed message; trace context travels as Kafka headers.
func (b *KafkaBroker) Publish(ctx context.Context, topic, key string, payload []byte) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	}
	for k, v := range InjectHeader(ctx) {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish to %s: %w", topic, err)
	}
	return nil
}

func (b *KafkaBroker) Subscribe(ctx context.Context, topic, group string, opts ...SubscribeOption) (Subscription, error) {
	if topic == "" {
		return nil, errors.New("kafka topic cannot be empty")
	}
	if group == "" {
		return nil, errors.New("kafka group cannot be empty")
	}
	o := buildSubscribeOptions(opts)
	reader := b.newReader(topic, group, o)

	subCtx, cancel := context.WithCancel(ctx)
	sub := &kafkaSub{
		broker:  b,
		reader:  reader,
		cancel:  cancel,
		out:     make(chan Message, o.Buffer),
		errCh:   make(chan error, 1),
		pending: make(map[string]kafka.Message),
		done:    make(chan struct{}),
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	klog.V(2).Infof("kafka reader initialized for topic=%s group=%s", topic, group)
	go sub.loop(subCtx)
	return sub, nil
}

// Ping dials the brokers and asks for the controller.
func (b *KafkaBroker) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.DialTimeout)
	defer cancel()
	var lastErr error
	for _, addr := range b.cfg.Brokers {
		conn, err := b.cfg.Dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		_, err = conn.Controller()
		_ = conn.Close()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("unable to reach any kafka broker: %w", lastErr)
}

// Close releases the Kafka writer and every reader.
func (b *KafkaBroker) Close(ctx context.Context) error {
	var errs []error

	b.mu.Lock()
	subs := make([]*kafkaSub, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()
	for _, s := range subs {
		if err := s.Unsubscribe(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if b.writer != nil {
		if err := b.writer.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

type kafkaSub struct {
	broker *KafkaBroker
	reader kafkaReader
	cancel context.CancelFunc
	out    chan Message
	errCh  chan error
	done   chan struct{}

	// pending tracks messages that have been delivered but not yet acknowledged.
	// Key is the message ID (partition:offset), value is the kafka message for commit.
	pendingMu sync.Mutex
	pending   map[string]kafka.Message

	closeOnce sync.Once
	closeErr  error
}

func (s *kafkaSub) loop(ctx context.Context) {
	defer close(s.done)
	defer close(s.out)
	backoff := 200 * time.Millisecond
	for {
		km, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, io.EOF) {
				return
			}
			klog.V(4).Infof("kafka fetch error: %v", err)
			select {
			case s.errCh <- err:
			default:
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = 200 * time.Millisecond

		msg := fromKafkaMessage(km)
		s.pendingMu.Lock()
		s.pending[msg.ID] = km
		s.pendingMu.Unlock()

		select {
		case s.out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func fromKafkaMessage(km kafka.Message) Message {
	msg := Message{
		ID:      messageID(km),
		Topic:   km.Topic,
		Key:     string(km.Key),
		Payload: km.Value,
	}
	if len(km.Headers) > 0 {
		msg.Header = make(map[string]string, len(km.Headers))
		for _, h := range km.Headers {
			msg.Header[h.Key] = string(h.Value)
		}
	}
	return msg
}

// messageID generates a unique message ID from partition and offset.
func messageID(km kafka.Message) string {
	return fmt.Sprintf("%d:%d", km.Partition, km.Offset)
}

func (s *kafkaSub) C() <-chan Message { return s.out }
func (s *kafkaSub) Err() <-chan error { return s.errCh }

// Ack commits the offsets of processed messages.
func (s *kafkaSub) Ack(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	var commit []kafka.Message
	for _, m := range msgs {
		km, ok := s.pending[m.ID]
		if !ok {
			klog.V(4).Infof("kafka ack: message %s not found in pending, may be already acked", m.ID)
			continue
		}
		commit = append(commit, km)
	}
	if len(commit) == 0 {
		return nil
	}
	if err := s.reader.CommitMessages(ctx, commit...); err != nil {
		return err
	}
	for _, m := range msgs {
		delete(s.pending, m.ID)
	}
	return nil
}

func (s *kafkaSub) Unsubscribe(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.closeErr = s.reader.Close()
		<-s.done
		s.broker.mu.Lock()
		delete(s.broker.subs, s)
		s.broker.mu.Unlock()
	})
	return s.closeErr
}

// pendingCount returns the number of delivered but unacknowledged messages.
func (s *kafkaSub) pendingCount() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pending)
}
