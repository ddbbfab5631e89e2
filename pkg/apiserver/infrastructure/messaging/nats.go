package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"k8s.io/klog/v2"
)

// natsKeyHeader carries the routing key; core NATS subjects have no key of their own.
const natsKeyHeader = "Calc-Key"

// NATSConfig holds NATS connection options.
type NATSConfig struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	MaxReconnects int
}

// NATSBroker implements Broker on core NATS. Consumer groups map to queue groups,
// so delivery is at-most-once and Ack is a no-op.
type NATSBroker struct {
	conn *nats.Conn
	own  bool

	mu   sync.Mutex
	subs map[*natsSub]struct{}
}

// NewNATSBroker connects to cfg.URL.
func NewNATSBroker(cfg NATSConfig) (*NATSBroker, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url cannot be empty")
	}
	opts := []nats.Option{nats.Name(cfg.Name)}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(cfg.ReconnectWait))
	}
	if cfg.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(cfg.MaxReconnects))
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	b := NewNATSBrokerWithConn(nc)
	b.own = true
	return b, nil
}

// NewNATSBrokerWithConn wraps an existing connection owned by the caller.
func NewNATSBrokerWithConn(nc *nats.Conn) *NATSBroker {
	return &NATSBroker{conn: nc, subs: make(map[*natsSub]struct{})}
}

func (b *NATSBroker) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.conn.PublishMsg(toNATSMsg(ctx, topic, key, payload))
}

func toNATSMsg(ctx context.Context, topic, key string, payload []byte) *nats.Msg {
	msg := nats.NewMsg(topic)
	msg.Data = payload
	msg.Header.Set(natsKeyHeader, key)
	for k, v := range InjectHeader(ctx) {
		msg.Header.Set(k, v)
	}
	return msg
}

func fromNATSMsg(m *nats.Msg) Message {
	msg := Message{Topic: m.Subject, Payload: m.Data}
	for k := range m.Header {
		if k == natsKeyHeader {
			msg.Key = m.Header.Get(k)
			continue
		}
		if msg.Header == nil {
			msg.Header = make(map[string]string)
		}
		msg.Header[k] = m.Header.Get(k)
	}
	return msg
}

// Subscribe joins the queue group named group. FromLatest is implied: core NATS keeps no history.
func (b *NATSBroker) Subscribe(ctx context.Context, topic, group string, opts ...SubscribeOption) (Subscription, error) {
	o := buildSubscribeOptions(opts)
	raw := make(chan *nats.Msg, o.Buffer)
	ns, err := b.conn.ChanQueueSubscribe(topic, group, raw)
	if err != nil {
		return nil, err
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub := &natsSub{
		broker: b,
		sub:    ns,
		cancel: cancel,
		out:    make(chan Message, o.Buffer),
		done:   make(chan struct{}),
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	go sub.loop(subCtx, raw)
	return sub, nil
}

func (b *NATSBroker) Ping(ctx context.Context) error {
	if b.conn.IsClosed() {
		return ErrBrokerClosed
	}
	if !b.conn.IsConnected() {
		return fmt.Errorf("nats not connected: %s", b.conn.Status())
	}
	return b.conn.FlushWithContext(ctx)
}

func (b *NATSBroker) Close(ctx context.Context) error {
	b.mu.Lock()
	subs := make([]*natsSub, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()
	var errs []error
	for _, s := range subs {
		if err := s.Unsubscribe(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if b.own {
		if err := b.conn.Drain(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type natsSub struct {
	broker *NATSBroker
	sub    *nats.Subscription
	cancel context.CancelFunc
	out    chan Message
	done   chan struct{}
	once   sync.Once
	err    error
}

func (s *natsSub) loop(ctx context.Context, raw <-chan *nats.Msg) {
	defer close(s.done)
	defer close(s.out)
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-raw:
			select {
			case s.out <- fromNATSMsg(m):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *natsSub) C() <-chan Message                           { return s.out }
func (s *natsSub) Err() <-chan error                           { return nil }
func (s *natsSub) Ack(ctx context.Context, _ ...Message) error { return nil }

func (s *natsSub) Unsubscribe(ctx context.Context) error {
	s.once.Do(func() {
		if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			klog.V(4).Infof("nats unsubscribe %s: %v", s.sub.Subject, err)
			s.err = err
		}
		s.cancel()
		<-s.done
		s.broker.mu.Lock()
		delete(s.broker.subs, s)
		s.broker.mu.Unlock()
	})
	return s.err
}
