package messaging

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"k8s.io/klog/v2"
)

const (
	streamFieldKey     = "k"
	streamFieldPayload = "p"
	streamHeaderPrefix = "h."
)

// redisCommander abstracts the subset of go-redis client used by this broker.
// It allows tests to inject a fake implementation without a real Redis server.
type redisCommander interface {
	Ping(ctx context.Context) *redis.StatusCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd
}

// RedisStreamsConfig tunes the Redis Streams broker.
type RedisStreamsConfig struct {
	// KeyPrefix is prepended to topic names to build stream keys.
	KeyPrefix string
	// MaxLen limits the stream length via XADD MAXLEN to avoid unbounded growth.
	// When <= 0, no trimming is applied.
	MaxLen int64
	// Block is how long one XREADGROUP call waits for new entries.
	Block time.Duration
	// Count is the maximum number of entries fetched per read.
	Count int64
	// ClaimIdle is how long an entry may stay unacknowledged before another member claims it.
	// Zero disables claiming.
	ClaimIdle time.Duration
}

// RedisStreamsBroker implements Broker using Redis Streams + Consumer Groups.
type RedisStreamsBroker struct {
	cli redisCommander
	cfg RedisStreamsConfig

	mu   sync.Mutex
	subs map[*redisStreamSub]struct{}
}

// NewRedisStreamsBroker builds a broker on a shared go-redis client (or any compatible implementation).
// The caller owns the client's lifecycle (creation and Close).
func NewRedisStreamsBroker(cli redisCommander, cfg RedisStreamsConfig) (*RedisStreamsBroker, error) {
	if cli == nil {
		return nil, errors.New("redis client is nil")
	}
	if cfg.Block <= 0 {
		cfg.Block = time.Second
	}
	if cfg.Count <= 0 {
		cfg.Count = 16
	}
	return &RedisStreamsBroker{cli: cli, cfg: cfg, subs: make(map[*redisStreamSub]struct{})}, nil
}

func (r *RedisStreamsBroker) streamKey(topic string) string {
	return r.cfg.KeyPrefix + topic
}

func (r *RedisStreamsBroker) Publish(ctx context.Context, topic, key string, payload []byte) error {
	values := map[string]interface{}{
		streamFieldKey:     key,
		streamFieldPayload: payload,
	}
	for k, v := range InjectHeader(ctx) {
		values[streamHeaderPrefix+k] = v
	}
	args := &redis.XAddArgs{
		Stream: r.streamKey(topic),
		Values: values,
	}
	if r.cfg.MaxLen > 0 {
		args.MaxLen = r.cfg.MaxLen
		args.Approx = true
	}
	return r.cli.XAdd(ctx, args).Err()
}

// ensureGroup creates the group; an existing group (BUSYGROUP) is not an error.
func (r *RedisStreamsBroker) ensureGroup(ctx context.Context, stream, group string, fromLatest bool) error {
	start := "0"
	if fromLatest {
		start = "$"
	}
	err := r.cli.XGroupCreateMkStream(ctx, stream, group, start).Err()
	if err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

func (r *RedisStreamsBroker) Subscribe(ctx context.Context, topic, group string, opts ...SubscribeOption) (Subscription, error) {
	if topic == "" || group == "" {
		return nil, errors.New("redis streams requires topic and group")
	}
	o := buildSubscribeOptions(opts)
	stream := r.streamKey(topic)
	if err := r.ensureGroup(ctx, stream, group, o.FromLatest); err != nil {
		return nil, err
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub := &redisStreamSub{
		broker:   r,
		topic:    topic,
		stream:   stream,
		group:    group,
		consumer: group + "-" + uuid.NewString()[:8],
		cancel:   cancel,
		out:      make(chan Message, o.Buffer),
		errCh:    make(chan error, 1),
		done:     make(chan struct{}),
	}
	r.mu.Lock()
	r.subs[sub] = struct{}{}
	r.mu.Unlock()
	klog.V(2).Infof("redis stream subscription stream=%s group=%s consumer=%s", stream, group, sub.consumer)
	go sub.loop(subCtx)
	return sub, nil
}

func (r *RedisStreamsBroker) Ping(ctx context.Context) error {
	return r.cli.Ping(ctx).Err()
}

// Close stops every subscription. The shared client is left open.
func (r *RedisStreamsBroker) Close(ctx context.Context) error {
	r.mu.Lock()
	subs := make([]*redisStreamSub, 0, len(r.subs))
	for s := range r.subs {
		subs = append(subs, s)
	}
	r.mu.Unlock()
	for _, s := range subs {
		_ = s.Unsubscribe(ctx)
	}
	return nil
}

type redisStreamSub struct {
	broker   *RedisStreamsBroker
	topic    string
	stream   string
	group    string
	consumer string
	cancel   context.CancelFunc
	out      chan Message
	errCh    chan error
	done     chan struct{}
	once     sync.Once
}

func (s *redisStreamSub) loop(ctx context.Context) {
	defer close(s.done)
	defer close(s.out)
	cfg := s.broker.cfg
	lastClaim := time.Now()
	backoff := 200 * time.Millisecond
	for {
		if ctx.Err() != nil {
			return
		}
		if cfg.ClaimIdle > 0 && time.Since(lastClaim) >= cfg.ClaimIdle {
			lastClaim = time.Now()
			if !s.claim(ctx) {
				return
			}
		}
		res, err := s.broker.cli.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: s.consumer,
			Streams:  []string{s.stream, ">"},
			Count:    cfg.Count,
			Block:    cfg.Block,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return
			}
			klog.V(4).Infof("redis stream read error stream=%s: %v", s.stream, err)
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
		for _, st := range res {
			if !s.deliver(ctx, st.Messages) {
				return
			}
		}
	}
}

// claim takes over entries left unacknowledged by crashed members of the group.
func (s *redisStreamSub) claim(ctx context.Context) bool {
	msgs, _, err := s.broker.cli.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.stream,
		Group:    s.group,
		Consumer: s.consumer,
		MinIdle:  s.broker.cfg.ClaimIdle,
		Start:    "0-0",
		Count:    s.broker.cfg.Count,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		klog.V(4).Infof("redis stream autoclaim error stream=%s: %v", s.stream, err)
		return ctx.Err() == nil
	}
	return s.deliver(ctx, msgs)
}

func (s *redisStreamSub) deliver(ctx context.Context, entries []redis.XMessage) bool {
	for _, m := range entries {
		msg, ok := fromStreamEntry(s.topic, m)
		if !ok {
			klog.Warningf("redis stream message missing payload field 'p' id=%s", m.ID)
			_ = s.broker.cli.XAck(ctx, s.stream, s.group, m.ID).Err()
			continue
		}
		select {
		case s.out <- msg:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func fromStreamEntry(topic string, m redis.XMessage) (Message, bool) {
	msg := Message{ID: m.ID, Topic: topic}
	raw, ok := m.Values[streamFieldPayload]
	if !ok {
		return msg, false
	}
	switch v := raw.(type) {
	case string:
		msg.Payload = []byte(v)
	case []byte:
		msg.Payload = v
	default:
		return msg, false
	}
	if k, ok := m.Values[streamFieldKey].(string); ok {
		msg.Key = k
	}
	for field, v := range m.Values {
		name, found := strings.CutPrefix(field, streamHeaderPrefix)
		if !found {
			continue
		}
		if msg.Header == nil {
			msg.Header = make(map[string]string)
		}
		if sv, ok := v.(string); ok {
			msg.Header[name] = sv
		}
	}
	return msg, true
}

func (s *redisStreamSub) C() <-chan Message { return s.out }
func (s *redisStreamSub) Err() <-chan error { return s.errCh }

func (s *redisStreamSub) Ack(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return s.broker.cli.XAck(ctx, s.stream, s.group, ids...).Err()
}

func (s *redisStreamSub) Unsubscribe(ctx context.Context) error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		s.broker.mu.Lock()
		delete(s.broker.subs, s)
		s.broker.mu.Unlock()
	})
	return nil
}
