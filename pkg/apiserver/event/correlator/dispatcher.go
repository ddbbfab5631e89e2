package correlator

import (
	"context"

	"calcbridge/pkg/apiserver/domain/model"
	"calcbridge/pkg/apiserver/infrastructure/messaging"
)

// Dispatcher encodes requests and publishes them keyed by correlation id. It keeps no state.
type Dispatcher struct {
	publisher messaging.Publisher
	topic     string
	codec     messaging.MessageCodec[model.OperationRequest]
}

func NewDispatcher(p messaging.Publisher, topic string, codec messaging.MessageCodec[model.OperationRequest]) *Dispatcher {
	return &Dispatcher{publisher: p, topic: topic, codec: codec}
}

// Dispatch fails with MalformedRequest when the request cannot be encoded and with
// ChannelUnavailable when the broker rejects it.
func (d *Dispatcher) Dispatch(ctx context.Context, req model.OperationRequest) error {
	payload, err := d.codec.Encode(req)
	if err != nil {
		return err
	}
	if err := d.publisher.Publish(ctx, d.topic, req.CorrelationID, payload); err != nil {
		return model.NewChannelUnavailable(err)
	}
	return nil
}
