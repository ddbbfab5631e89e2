package correlator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"calcbridge/pkg/apiserver/domain/model"
	"calcbridge/pkg/apiserver/domain/wire"
	"calcbridge/pkg/apiserver/infrastructure/messaging"
	"calcbridge/pkg/apiserver/utils/errhandler"
)

var tracer = otel.Tracer("calcbridge/correlator")

// Config tunes a Correlator.
type Config struct {
	RequestTopic  string
	ResponseTopic string
	// Group is the consumer group on the response topic. Each gateway instance needs its own,
	// since outcomes for its requests can only be resolved where they are pending.
	Group           string
	Timeout         time.Duration
	SweepInterval   time.Duration
	ResponseWorkers int
}

// Stats is a snapshot of the correlator counters.
type Stats struct {
	Pending   int    `json:"pending"`
	Published uint64 `json:"published"`
	Resolved  uint64 `json:"resolved"`
	Unknown   uint64 `json:"unknown"`
	Expired   uint64 `json:"expired"`
	Cancelled uint64 `json:"cancelled"`
	Malformed uint64 `json:"malformed"`
}

type counters struct {
	published atomic.Uint64
	resolved  atomic.Uint64
	unknown   atomic.Uint64
	expired   atomic.Uint64
	cancelled atomic.Uint64
	malformed atomic.Uint64
}

// Correlator turns keyed pub/sub into request/reply. It registers a pending entry before
// publishing and resolves it with the first outcome that carries its id.
type Correlator struct {
	cfg        Config
	broker     messaging.Broker
	dispatcher *Dispatcher
	outcomes   messaging.MessageCodec[model.Outcome]
	table      *PendingTable

	newID func() string
	now   func() time.Time

	stats counters

	readyOnce sync.Once
	ready     chan struct{}
}

// Option customizes a Correlator.
type Option func(*Correlator)

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(f func() string) Option {
	return func(c *Correlator) { c.newID = f }
}

// WithClock replaces time.Now for deadlines and sweeping.
func WithClock(now func() time.Time) Option {
	return func(c *Correlator) { c.now = now }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Correlator) {
		if d > 0 {
			c.cfg.Timeout = d
		}
	}
}

func WithSweepInterval(d time.Duration) Option {
	return func(c *Correlator) {
		if d > 0 {
			c.cfg.SweepInterval = d
		}
	}
}

// New builds a correlator publishing and subscribing through broker.
func New(broker messaging.Broker, format wire.Format, cfg Config, opts ...Option) *Correlator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Second
	}
	if cfg.ResponseWorkers < 1 {
		cfg.ResponseWorkers = 1
	}
	if cfg.Group == "" {
		cfg.Group = "calcbridge-gateway-" + uuid.NewString()
	}
	c := &Correlator{
		cfg:        cfg,
		broker:     broker,
		dispatcher: NewDispatcher(broker, cfg.RequestTopic, format.Requests),
		outcomes:   format.Outcomes,
		table:      NewPendingTable(),
		newID:      uuid.NewString,
		now:        time.Now,
		ready:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call is a submitted request. Wait blocks until it resolves.
type Call struct {
	c       *Correlator
	pending *PendingRequest
}

// ID returns the correlation id of the call.
func (call *Call) ID() string { return call.pending.ID }

// Submit validates the operation, registers a pending entry and publishes the request.
// A timeout <= 0 uses the configured default.
func (c *Correlator) Submit(ctx context.Context, op string, a, b decimal.Decimal, timeout time.Duration) (*Call, error) {
	canonical, err := model.ParseOperation(op)
	if err != nil {
		return nil, err
	}
	for _, d := range []decimal.Decimal{a, b} {
		if err := model.CheckOperand(d); err != nil {
			return nil, err
		}
	}
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	id := strings.TrimSpace(c.newID())
	if id == "" {
		return nil, model.NewMalformedRequest("blank correlation id")
	}

	ctx, span := tracer.Start(ctx, "correlator.submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("calc.correlation_id", id),
		attribute.String("calc.operation", string(canonical)),
	)

	now := c.now()
	p := &PendingRequest{ID: id, CreatedAt: now, Deadline: now.Add(timeout), slot: newResultSlot()}
	if !c.table.Insert(p) {
		err := model.NewInternal(fmt.Errorf("correlation id %s already pending", id))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	req := model.OperationRequest{CorrelationID: id, OperandA: a, OperandB: b, Operation: canonical}
	if err := c.dispatcher.Dispatch(ctx, req); err != nil {
		c.table.RemoveIf(id, p)
		span.SetStatus(codes.Error, err.Error())
		klog.ErrorS(err, "dispatch request failed", "correlationID", id)
		return nil, err
	}
	c.stats.published.Add(1)
	klog.V(4).InfoS("request published", "correlationID", id, "operation", canonical)
	return &Call{c: c, pending: p}, nil
}

// Wait blocks until the outcome arrives, the deadline passes or ctx is done.
// The pending entry is gone from the table when Wait returns.
func (call *Call) Wait(ctx context.Context) (decimal.Decimal, error) {
	c, p := call.c, call.pending
	timer := time.NewTimer(p.Deadline.Sub(c.now()))
	defer timer.Stop()

	select {
	case <-p.slot.Done():
	case <-timer.C:
		c.expire(p)
	case <-ctx.Done():
		c.abandon(p, ctx.Err())
	}
	return p.slot.result()
}

// expire resolves p with a timeout if it is still pending. If another path took it first,
// that path resolves it.
func (c *Correlator) expire(p *PendingRequest) {
	if !c.table.RemoveIf(p.ID, p) {
		return
	}
	c.stats.expired.Add(1)
	klog.V(2).InfoS("request timed out", "correlationID", p.ID, "after", p.Deadline.Sub(p.CreatedAt))
	p.slot.resolve(decimal.Zero, model.NewTimeout("no response for request %s within %s", p.ID, p.Deadline.Sub(p.CreatedAt)))
}

func (c *Correlator) abandon(p *PendingRequest, cause error) {
	if !c.table.RemoveIf(p.ID, p) {
		return
	}
	c.stats.cancelled.Add(1)
	klog.V(2).InfoS("request abandoned by caller", "correlationID", p.ID, "cause", cause)
	var err error
	if errors.Is(cause, context.DeadlineExceeded) {
		err = &model.Error{Kind: model.KindTimeout, Message: fmt.Sprintf("caller deadline exceeded waiting for %s", p.ID), Err: cause}
	} else {
		err = fmt.Errorf("request %s abandoned: %w", p.ID, cause)
	}
	p.slot.resolve(decimal.Zero, err)
}

// Execute submits with the default timeout and waits. The id is returned whenever the
// request was published, including when waiting fails.
func (c *Correlator) Execute(ctx context.Context, op string, a, b decimal.Decimal) (string, decimal.Decimal, error) {
	call, err := c.Submit(ctx, op, a, b, 0)
	if err != nil {
		return "", decimal.Zero, err
	}
	v, err := call.Wait(ctx)
	return call.ID(), v, err
}

// HandleResponse resolves the request the outcome belongs to. It reports false for an id that
// is not pending (unknown, already resolved or expired); such outcomes are discarded.
func (c *Correlator) HandleResponse(o model.Outcome) bool {
	p, ok := c.table.Take(o.CorrelationID)
	if !ok {
		c.stats.unknown.Add(1)
		klog.V(2).InfoS("discarding outcome for unknown correlation id", "correlationID", o.CorrelationID, "failed", o.Failed())
		return false
	}
	v, err := o.Result()
	p.slot.resolve(v, err)
	c.stats.resolved.Add(1)
	klog.V(4).InfoS("request resolved", "correlationID", o.CorrelationID, "latency", c.now().Sub(p.CreatedAt))
	return true
}

// handleMessage decodes a response message. The message key wins over an id in the payload.
func (c *Correlator) handleMessage(ctx context.Context, msg messaging.Message) {
	ctx = messaging.ContextFromMessage(ctx, msg)
	_, span := tracer.Start(ctx, "correlator.response")
	defer span.End()

	o, err := c.outcomes.Decode(msg.Payload)
	id := msg.Key
	if id == "" {
		id = o.CorrelationID
	}
	span.SetAttributes(attribute.String("calc.correlation_id", id))
	if err != nil {
		c.stats.malformed.Add(1)
		if id == "" {
			klog.V(2).InfoS("dropping undecodable response without correlation id", "err", err)
			return
		}
		klog.V(2).InfoS("undecodable response", "correlationID", id, "err", err)
		o = model.Failure(id, &model.Error{Kind: model.KindInternal, Message: "undecodable response: " + err.Error(), Err: err})
	}
	c.HandleResponse(o.WithID(id))
}

// Start consumes the response topic and sweeps expired entries until ctx is done.
// It implements the event Worker contract.
func (c *Correlator) Start(ctx context.Context, errChan chan error) {
	sub, err := c.broker.Subscribe(ctx, c.cfg.ResponseTopic, c.cfg.Group, messaging.FromLatest())
	if err != nil {
		errhandler.NotifyOrPanic(errChan)(fmt.Errorf("subscribe to %s: %w", c.cfg.ResponseTopic, err))
		return
	}
	klog.InfoS("correlator consuming responses", "topic", c.cfg.ResponseTopic, "group", c.cfg.Group, "workers", c.cfg.ResponseWorkers)
	c.readyOnce.Do(func() { close(c.ready) })

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < c.cfg.ResponseWorkers; i++ {
		g.Go(func() error {
			c.consume(gctx, sub)
			return nil
		})
	}
	g.Go(func() error {
		c.sweep(gctx)
		return nil
	})
	g.Go(func() error {
		watchSubscriptionErrors(gctx, sub)
		return nil
	})
	_ = g.Wait()

	if err := sub.Unsubscribe(context.Background()); err != nil {
		klog.V(4).Infof("unsubscribe responses: %v", err)
	}
	c.failPending(model.NewChannelUnavailable(errors.New("correlator stopped")))
}

func (c *Correlator) consume(ctx context.Context, sub messaging.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			c.handleMessage(ctx, msg)
			if err := sub.Ack(ctx, msg); err != nil {
				klog.V(4).Infof("ack response %s: %v", msg.ID, err)
			}
		}
	}
}

func watchSubscriptionErrors(ctx context.Context, sub messaging.Subscription) {
	errs := sub.Err()
	if errs == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				return
			}
			klog.Warningf("response subscription error: %v", err)
		}
	}
}

// sweep reclaims expired entries whether or not anyone is waiting on them.
func (c *Correlator) sweep(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.SweepExpired()
		}
	}
}

// SweepExpired resolves every expired entry with a timeout and returns how many it reclaimed.
func (c *Correlator) SweepExpired() int {
	expired := c.table.TakeExpired(c.now())
	for _, p := range expired {
		c.stats.expired.Add(1)
		p.slot.resolve(decimal.Zero, model.NewTimeout("no response for request %s within %s", p.ID, p.Deadline.Sub(p.CreatedAt)))
	}
	if len(expired) > 0 {
		klog.V(2).InfoS("swept expired requests", "count", len(expired))
	}
	return len(expired)
}

func (c *Correlator) failPending(err error) {
	for _, p := range c.table.Drain() {
		p.slot.resolve(decimal.Zero, err)
	}
}

// Ready is closed once the response subscription is active.
func (c *Correlator) Ready() <-chan struct{} { return c.ready }

// Stats returns a snapshot of the counters.
func (c *Correlator) Stats() Stats {
	return Stats{
		Pending:   c.table.Len(),
		Published: c.stats.published.Load(),
		Resolved:  c.stats.resolved.Load(),
		Unknown:   c.stats.unknown.Load(),
		Expired:   c.stats.expired.Load(),
		Cancelled: c.stats.cancelled.Load(),
		Malformed: c.stats.malformed.Load(),
	}
}

// Pending reports whether id is still waiting for an outcome.
func (c *Correlator) Pending(id string) bool { return c.table.Has(id) }
