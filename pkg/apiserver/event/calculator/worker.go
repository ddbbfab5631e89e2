package calculator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"calcbridge/pkg/apiserver/config"
	"calcbridge/pkg/apiserver/domain/model"
	"calcbridge/pkg/apiserver/domain/service"
	"calcbridge/pkg/apiserver/domain/wire"
	"calcbridge/pkg/apiserver/infrastructure/messaging"
	"calcbridge/pkg/apiserver/utils/cache"
	"calcbridge/pkg/apiserver/utils/errhandler"
)

const workerMaxSubscribeFailures = 5

// Config tunes a Worker.
type Config struct {
	RequestTopic  string
	ResponseTopic string
	// Group is shared by every calculator so each request is evaluated by one of them.
	Group   string
	Workers int
}

// Stats is a snapshot of the worker counters.
type Stats struct {
	Evaluated uint64 `json:"evaluated"`
	Replayed  uint64 `json:"replayed"`
	Rejected  uint64 `json:"rejected"`
	Dropped   uint64 `json:"dropped"`
}

// Worker consumes the request topic, evaluates each request on a bounded pool and
// publishes the outcome.
type Worker struct {
	cfg       Config
	broker    messaging.Broker
	requests  messaging.MessageCodec[model.OperationRequest]
	responder *Responder
	evaluator service.CalculatorService
	replay    *replayStore

	evaluated atomic.Uint64
	replayed  atomic.Uint64
	rejected  atomic.Uint64
	dropped   atomic.Uint64

	readyOnce sync.Once
	ready     chan struct{}
}

// NewWorker builds a calculator worker. replay may be nil to disable idempotent redelivery.
func NewWorker(broker messaging.Broker, format wire.Format, evaluator service.CalculatorService, replay cache.ICache, cfg Config) *Worker {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Worker{
		cfg:       cfg,
		broker:    broker,
		requests:  format.Requests,
		responder: NewResponder(broker, cfg.ResponseTopic, format.Outcomes),
		evaluator: evaluator,
		replay:    newReplayStore(replay),
		ready:     make(chan struct{}),
	}
}

// Start implements the event Worker contract. It resubscribes with backoff when the
// subscription ends while ctx is still live.
func (w *Worker) Start(ctx context.Context, errChan chan error) {
	delay := config.DefaultWorkerBackoffMin
	failures := 0
	for ctx.Err() == nil {
		sub, err := w.broker.Subscribe(ctx, w.cfg.RequestTopic, w.cfg.Group)
		if err != nil {
			failures++
			klog.V(4).Infof("subscribe %s failed (%d consecutive): %v", w.cfg.RequestTopic, failures, err)
			if failures >= workerMaxSubscribeFailures {
				errhandler.NotifyOrPanic(errChan)(fmt.Errorf("calculator worker gave up subscribing to %s: %w", w.cfg.RequestTopic, err))
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = backoffDelay(delay)
			continue
		}
		failures = 0
		delay = config.DefaultWorkerBackoffMin
		klog.InfoS("calculator consuming requests", "topic", w.cfg.RequestTopic, "group", w.cfg.Group, "workers", w.cfg.Workers)
		w.readyOnce.Do(func() { close(w.ready) })

		w.consume(ctx, sub)
		if err := sub.Unsubscribe(context.Background()); err != nil {
			klog.V(4).Infof("unsubscribe requests: %v", err)
		}
	}
}

func backoffDelay(current time.Duration) time.Duration {
	next := current * 2
	if next > config.DefaultWorkerBackoffMax {
		return config.DefaultWorkerBackoffMax
	}
	return next
}

// consume runs until the subscription closes or ctx is done, then waits for in-flight requests.
func (w *Worker) consume(ctx context.Context, sub messaging.Subscription) {
	var g errgroup.Group
	g.SetLimit(w.cfg.Workers)
	defer func() { _ = g.Wait() }()
	errs := sub.Err()
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			klog.Warningf("request subscription error: %v", err)
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			g.Go(func() error {
				w.Process(ctx, msg)
				if err := sub.Ack(ctx, msg); err != nil {
					klog.V(4).Infof("ack request %s: %v", msg.ID, err)
				}
				return nil
			})
		}
	}
}

// Process handles one request message. Nothing it does is returned as an error: undecodable
// requests with a known id are answered, the rest are dropped.
func (w *Worker) Process(ctx context.Context, msg messaging.Message) {
	ctx = messaging.ContextFromMessage(ctx, msg)
	req, err := w.requests.Decode(msg.Payload)
	if err != nil {
		var de *wire.DecodeError
		if errors.As(err, &de) && de.Answerable() {
			w.rejected.Add(1)
			klog.V(2).InfoS("rejecting malformed request", "correlationID", de.ID, "err", err)
			w.responder.Respond(ctx, model.Failure(de.ID, de.Err))
			return
		}
		w.dropped.Add(1)
		klog.V(2).InfoS("dropping request without usable correlation id", "key", msg.Key, "err", err)
		return
	}

	logger := klog.FromContext(ctx).WithValues("correlationID", req.CorrelationID)
	if o, ok := w.replay.load(ctx, req.CorrelationID); ok {
		w.replayed.Add(1)
		logger.V(2).Info("replaying outcome for redelivered request")
		w.responder.Respond(ctx, o)
		return
	}

	o := w.evaluator.Evaluate(ctx, req)
	w.evaluated.Add(1)
	if o.Failed() {
		logger.V(4).Info("request failed", "kind", o.Err.Kind, "message", o.Err.Message)
	}
	w.replay.store(ctx, o)
	w.responder.Respond(ctx, o)
}

// Ready is closed after the first successful subscription.
func (w *Worker) Ready() <-chan struct{} { return w.ready }

func (w *Worker) Stats() Stats {
	return Stats{
		Evaluated: w.evaluated.Load(),
		Replayed:  w.replayed.Load(),
		Rejected:  w.rejected.Load(),
		Dropped:   w.dropped.Load(),
	}
}
