package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis implements redisCommander for testing without a real Redis.
type fakeRedis struct {
	groupErr error
	lastAdd  *redis.XAddArgs
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("PONG")
	return cmd
}

func (f *fakeRedis) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if f.groupErr != nil {
		cmd.SetErr(f.groupErr)
		return cmd
	}
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.lastAdd = a
	cmd := redis.NewStringCmd(ctx)
	cmd.SetVal("1-0")
	return cmd
}

func (f *fakeRedis) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	cmd := redis.NewXStreamSliceCmd(ctx)
	select {
	case <-ctx.Done():
		cmd.SetErr(ctx.Err())
	case <-time.After(a.Block):
		cmd.SetErr(redis.Nil)
	}
	return cmd
}

func (f *fakeRedis) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(ids)))
	return cmd
}

func (f *fakeRedis) XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd {
	return redis.NewXAutoClaimCmd(ctx)
}

func TestNewRedisStreamsBroker_Validation(t *testing.T) {
	_, err := NewRedisStreamsBroker(nil, RedisStreamsConfig{})
	require.Error(t, err)

	rb, err := NewRedisStreamsBroker(&fakeRedis{}, RedisStreamsConfig{})
	require.NoError(t, err)
	assert.Equal(t, time.Second, rb.cfg.Block)
	assert.EqualValues(t, 16, rb.cfg.Count)
}

func TestRedisStreamsBroker_PublishFields(t *testing.T) {
	f := &fakeRedis{}
	rb, err := NewRedisStreamsBroker(f, RedisStreamsConfig{KeyPrefix: "calc:", MaxLen: 1000})
	require.NoError(t, err)

	require.NoError(t, rb.Publish(context.Background(), "calculator-requests", "id-1", []byte("id-1,1,2,add")))
	require.NotNil(t, f.lastAdd)
	assert.Equal(t, "calc:calculator-requests", f.lastAdd.Stream)
	assert.EqualValues(t, 1000, f.lastAdd.MaxLen)
	values := f.lastAdd.Values.(map[string]interface{})
	assert.Equal(t, "id-1", values[streamFieldKey])
	assert.Equal(t, []byte("id-1,1,2,add"), values[streamFieldPayload])
}

func TestRedisStreamsBroker_BusyGroupIgnored(t *testing.T) {
	f := &fakeRedis{groupErr: errors.New("BUSYGROUP Consumer Group name already exists")}
	rb, err := NewRedisStreamsBroker(f, RedisStreamsConfig{Block: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx := context.Background()
	sub, err := rb.Subscribe(ctx, "t", "g")
	require.NoError(t, err)
	require.NoError(t, sub.Unsubscribe(ctx))

	f.groupErr = errors.New("NOPERM this user has no permissions")
	_, err = rb.Subscribe(ctx, "t", "g")
	require.Error(t, err)
}

func TestFromStreamEntry(t *testing.T) {
	msg, ok := fromStreamEntry("responses", redis.XMessage{
		ID: "5-1",
		Values: map[string]interface{}{
			"k":             "id-9",
			"p":             "Division by zero is not allowed",
			"h.traceparent": "00-abc",
		},
	})
	require.True(t, ok)
	assert.Equal(t, "5-1", msg.ID)
	assert.Equal(t, "id-9", msg.Key)
	assert.Equal(t, "Division by zero is not allowed", string(msg.Payload))
	assert.Equal(t, "00-abc", msg.Header["traceparent"])

	_, ok = fromStreamEntry("responses", redis.XMessage{ID: "5-2", Values: map[string]interface{}{"k": "x"}})
	assert.False(t, ok)
}

func TestRedisStreamsBroker_Miniredis(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Skipf("start miniredis: %v", err)
	}
	defer s.Close()
	cli := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer cli.Close()

	rb, err := NewRedisStreamsBroker(cli, RedisStreamsConfig{KeyPrefix: "calc:", Block: 20 * time.Millisecond})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, rb.Ping(ctx))

	sub, err := rb.Subscribe(ctx, "calculator-requests", "calculators")
	require.NoError(t, err)
	require.NoError(t, rb.Publish(ctx, "calculator-requests", "id-1", []byte("id-1,10,2,divide")))

	m := receive(t, sub)
	assert.Equal(t, "id-1", m.Key)
	assert.Equal(t, "id-1,10,2,divide", string(m.Payload))
	assert.Equal(t, "calculator-requests", m.Topic)
	require.NoError(t, sub.Ack(ctx, m))

	require.NoError(t, rb.Close(ctx))
	_, ok := <-sub.C()
	assert.False(t, ok)
}
