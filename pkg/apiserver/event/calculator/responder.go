package calculator

import (
	"context"

	"k8s.io/klog/v2"

	"calcbridge/pkg/apiserver/domain/model"
	"calcbridge/pkg/apiserver/infrastructure/messaging"
)

// Responder publishes outcomes to the response topic keyed by correlation id.
type Responder struct {
	publisher messaging.Publisher
	topic     string
	codec     messaging.MessageCodec[model.Outcome]
}

func NewResponder(p messaging.Publisher, topic string, codec messaging.MessageCodec[model.Outcome]) *Responder {
	return &Responder{publisher: p, topic: topic, codec: codec}
}

// Respond encodes and publishes o. Failures are logged and swallowed; the waiting
// gateway times out instead. It reports whether the outcome was published.
func (r *Responder) Respond(ctx context.Context, o model.Outcome) bool {
	payload, err := r.codec.Encode(o)
	if err != nil {
		klog.ErrorS(err, "encode outcome failed", "correlationID", o.CorrelationID)
		return false
	}
	if err := r.publisher.Publish(ctx, r.topic, o.CorrelationID, payload); err != nil {
		klog.ErrorS(err, "publish outcome failed", "correlationID", o.CorrelationID, "topic", r.topic)
		return false
	}
	return true
}
