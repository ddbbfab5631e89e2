package calculator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calcbridge/pkg/apiserver/domain/model"
	"calcbridge/pkg/apiserver/domain/service"
	"calcbridge/pkg/apiserver/domain/wire"
	"calcbridge/pkg/apiserver/infrastructure/messaging"
	"calcbridge/pkg/apiserver/utils/cache"
)

const (
	reqTopic  = "calculator-requests"
	respTopic = "calculator-responses"
)

type countingEvaluator struct {
	inner service.CalculatorService
	calls atomic.Int32
}

func (c *countingEvaluator) Evaluate(ctx context.Context, req model.OperationRequest) model.Outcome {
	c.calls.Add(1)
	return c.inner.Evaluate(ctx, req)
}

func startWorker(t *testing.T, b messaging.Broker, replay cache.ICache) (*Worker, *countingEvaluator) {
	t.Helper()
	format, err := wire.Lookup(wire.FormatLegacy)
	require.NoError(t, err)
	eval := &countingEvaluator{inner: service.NewCalculatorService()}
	w := NewWorker(b, format, eval, replay, Config{
		RequestTopic:  reqTopic,
		ResponseTopic: respTopic,
		Group:         "calculator-group",
		Workers:       4,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Start(ctx, make(chan error, 1))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	select {
	case <-w.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not subscribe")
	}
	return w, eval
}

func responses(t *testing.T, b messaging.Broker) messaging.Subscription {
	t.Helper()
	sub, err := b.Subscribe(context.Background(), respTopic, "gateway")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe(context.Background()) })
	return sub
}

func send(t *testing.T, b messaging.Broker, key, payload string) {
	t.Helper()
	require.NoError(t, b.Publish(context.Background(), reqTopic, key, []byte(payload)))
}

func next(t *testing.T, sub messaging.Subscription) messaging.Message {
	t.Helper()
	select {
	case m, ok := <-sub.C():
		require.True(t, ok, "response subscription closed")
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no response published")
	}
	return messaging.Message{}
}

func assertSilent(t *testing.T, sub messaging.Subscription) {
	t.Helper()
	select {
	case m := <-sub.C():
		t.Fatalf("unexpected response %q", m.Payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWorkerEvaluatesAndResponds(t *testing.T) {
	b := messaging.NewMemoryBroker()
	out := responses(t, b)
	startWorker(t, b, nil)

	cases := []struct {
		payload string
		want    string
	}{
		{"r1,10,3,divide", "3.333333333"},
		{"r2,2,3,ADD", "5"},
		{"r3,1.5,2,multiplication", "3"},
		{"r4,5,0,division", "Division by zero is not allowed"},
		{"r5,5,2,mod", "Operation not supported: mod"},
		{"r6,abc,2,add", "Invalid number format"},
		{"r7,1e2000000000,2,add", "Operand out of range"},
	}
	for _, tc := range cases {
		id := tc.payload[:2]
		send(t, b, id, tc.payload)
		m := next(t, out)
		assert.Equal(t, id, m.Key)
		assert.Equal(t, tc.want, string(m.Payload))
	}
}

func TestWorkerDropsRequestsWithoutUsableID(t *testing.T) {
	b := messaging.NewMemoryBroker()
	out := responses(t, b)
	w, eval := startWorker(t, b, nil)

	send(t, b, "", "r1,1,2")
	send(t, b, "", ",1,2,add")
	send(t, b, "", "r1,1,2,add,extra")
	assertSilent(t, out)

	assert.EqualValues(t, 3, w.Stats().Dropped)
	assert.EqualValues(t, 0, eval.calls.Load())
}

func TestWorkerReplaysRedeliveredRequest(t *testing.T) {
	b := messaging.NewMemoryBroker()
	out := responses(t, b)
	w, eval := startWorker(t, b, cache.NewMemCache(false, time.Minute))

	send(t, b, "dup", "dup,7,6,multiply")
	first := next(t, out)
	send(t, b, "dup", "dup,7,6,multiply")
	second := next(t, out)

	assert.Equal(t, "42", string(first.Payload))
	assert.Equal(t, first.Payload, second.Payload)
	assert.EqualValues(t, 1, eval.calls.Load())
	assert.EqualValues(t, 1, w.Stats().Replayed)
}

func TestWorkerWithoutReplayEvaluatesAgain(t *testing.T) {
	b := messaging.NewMemoryBroker()
	out := responses(t, b)
	_, eval := startWorker(t, b, cache.NewMemCache(true, time.Minute))

	send(t, b, "dup", "dup,1,1,add")
	next(t, out)
	send(t, b, "dup", "dup,1,1,add")
	next(t, out)
	assert.EqualValues(t, 2, eval.calls.Load())
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, string, []byte) error {
	return messaging.ErrBrokerClosed
}

func TestResponderSwallowsPublishErrors(t *testing.T) {
	r := NewResponder(failingPublisher{}, respTopic, wire.LegacyOutcomeCodec{})
	assert.False(t, r.Respond(context.Background(), model.Failure("x", model.NewDivisionByZero())))
}
