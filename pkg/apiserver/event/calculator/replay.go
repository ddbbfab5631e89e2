package calculator

import (
	"context"

	"k8s.io/klog/v2"

	"calcbridge/pkg/apiserver/domain/model"
	"calcbridge/pkg/apiserver/domain/wire"
	"calcbridge/pkg/apiserver/utils/cache"
)

// replayStore remembers outcomes by correlation id so a redelivered request gets the
// same answer without being evaluated again.
type replayStore struct {
	cache cache.ICache
	codec wire.JSONOutcomeCodec
}

func newReplayStore(c cache.ICache) *replayStore {
	if c == nil || c.IsCacheDisabled() {
		return nil
	}
	return &replayStore{cache: c}
}

func (r *replayStore) load(ctx context.Context, id string) (model.Outcome, bool) {
	if r == nil {
		return model.Outcome{}, false
	}
	raw, ok, err := r.cache.Load(ctx, id)
	if err != nil {
		klog.V(2).InfoS("replay cache load failed", "correlationID", id, "err", err)
		return model.Outcome{}, false
	}
	if !ok {
		return model.Outcome{}, false
	}
	o, err := r.codec.Decode([]byte(raw))
	if err != nil {
		klog.V(2).InfoS("replay cache entry unreadable", "correlationID", id, "err", err)
		return model.Outcome{}, false
	}
	return o.WithID(id), true
}

// store skips internal failures so a redelivery gets another chance.
func (r *replayStore) store(ctx context.Context, o model.Outcome) {
	if r == nil || (o.Err != nil && o.Err.Kind == model.KindInternal) {
		return
	}
	raw, err := r.codec.Encode(o)
	if err != nil {
		return
	}
	if err := r.cache.Store(ctx, o.CorrelationID, string(raw)); err != nil {
		klog.V(2).InfoS("replay cache store failed", "correlationID", o.CorrelationID, "err", err)
	}
}
