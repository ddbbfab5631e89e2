package messaging

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
)

// MemoryBroker is an in-process broker used when gateway and calculator share one process
// and in tests. Every group on a topic receives each message; a group's members take turns.
type MemoryBroker struct {
	mu     sync.RWMutex
	topics map[string]map[string]*memoryGroup
	closed atomic.Bool
	seq    atomic.Uint64
}

type memoryGroup struct {
	subs []*memorySub
	next atomic.Uint64
}

// NewMemoryBroker creates an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{topics: make(map[string]map[string]*memoryGroup)}
}

// Publish delivers the message to one member of every group subscribed to topic.
// Messages published to a topic without subscribers are dropped.
func (b *MemoryBroker) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if b.closed.Load() {
		return ErrBrokerClosed
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	body := make([]byte, len(payload))
	copy(body, payload)
	msg := Message{
		ID:      strconv.FormatUint(b.seq.Add(1), 10),
		Topic:   topic,
		Key:     key,
		Payload: body,
		Header:  InjectHeader(ctx),
	}
	for _, g := range b.topics[topic] {
		if len(g.subs) == 0 {
			continue
		}
		sub := g.subs[int(g.next.Add(1)-1)%len(g.subs)]
		select {
		case sub.out <- msg:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, topic, group string, opts ...SubscribeOption) (Subscription, error) {
	o := buildSubscribeOptions(opts)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Load() {
		return nil, ErrBrokerClosed
	}
	groups, ok := b.topics[topic]
	if !ok {
		groups = make(map[string]*memoryGroup)
		b.topics[topic] = groups
	}
	g, ok := groups[group]
	if !ok {
		g = &memoryGroup{}
		groups[group] = g
	}
	sub := &memorySub{
		broker: b,
		topic:  topic,
		group:  group,
		out:    make(chan Message, o.Buffer),
		done:   make(chan struct{}),
	}
	g.subs = append(g.subs, sub)

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Unsubscribe(context.Background())
		case <-sub.done:
		}
	}()
	return sub, nil
}

func (b *MemoryBroker) Ping(ctx context.Context) error {
	if b.closed.Load() {
		return ErrBrokerClosed
	}
	return nil
}

// Close stops every subscription. Publishers blocked on a full subscriber are released.
func (b *MemoryBroker) Close(ctx context.Context) error {
	if b.closed.Swap(true) {
		return nil
	}
	var subs []*memorySub
	b.mu.RLock()
	for _, groups := range b.topics {
		for _, g := range groups {
			subs = append(subs, g.subs...)
		}
	}
	b.mu.RUnlock()
	for _, s := range subs {
		_ = s.Unsubscribe(ctx)
	}
	return nil
}

func (b *MemoryBroker) remove(s *memorySub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g := b.topics[s.topic][s.group]
	if g == nil {
		return
	}
	for i, cand := range g.subs {
		if cand == s {
			g.subs = append(g.subs[:i], g.subs[i+1:]...)
			break
		}
	}
	close(s.out)
}

type memorySub struct {
	broker *MemoryBroker
	topic  string
	group  string
	out    chan Message
	done   chan struct{}
	once   sync.Once
}

func (s *memorySub) C() <-chan Message                           { return s.out }
func (s *memorySub) Err() <-chan error                           { return nil }
func (s *memorySub) Ack(ctx context.Context, _ ...Message) error { return nil }

func (s *memorySub) Unsubscribe(ctx context.Context) error {
	s.once.Do(func() {
		close(s.done)
		s.broker.remove(s)
	})
	return nil
}
