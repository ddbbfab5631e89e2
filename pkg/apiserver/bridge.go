package apiserver

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"calcbridge/pkg/apiserver/config"
	"calcbridge/pkg/apiserver/domain/service"
	"calcbridge/pkg/apiserver/domain/wire"
	"calcbridge/pkg/apiserver/event/calculator"
	"calcbridge/pkg/apiserver/event/correlator"
	"calcbridge/pkg/apiserver/infrastructure/clients"
	"calcbridge/pkg/apiserver/infrastructure/messaging"
	"calcbridge/pkg/apiserver/utils/cache"
)

// NewBroker connects the broker selected by the messaging type. Shared clients are created
// through the clients package and stay open when the broker is closed.
func NewBroker(cfg config.Config) (messaging.Broker, error) {
	switch strings.ToLower(cfg.Messaging.Type) {
	case config.MessagingRedis:
		rcli, err := clients.EnsureRedis(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("init redis client: %w", err)
		}
		rb, err := messaging.NewRedisStreamsBroker(rcli, messaging.RedisStreamsConfig{
			MaxLen:    cfg.Redis.StreamMaxLen,
			Block:     cfg.Redis.ReadBlock,
			ClaimIdle: cfg.Redis.ClaimIdle,
		})
		if err != nil {
			return nil, err
		}
		return rb, nil
	case config.MessagingKafka:
		dialer, err := clients.EnsureKafka(cfg.Kafka)
		if err != nil {
			return nil, fmt.Errorf("init kafka: %w", err)
		}
		kb, err := messaging.NewKafkaBroker(messaging.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			ClientID:     cfg.Kafka.ClientID,
			RequiredAcks: cfg.Kafka.RequiredAcks,
			Dialer:       dialer,
		})
		if err != nil {
			return nil, err
		}
		return kb, nil
	case config.MessagingNATS:
		nc, err := clients.EnsureNATS(cfg.NATS, cfg.ServiceName)
		if err != nil {
			return nil, err
		}
		return messaging.NewNATSBrokerWithConn(nc), nil
	case config.MessagingMemory, "":
		return messaging.NewMemoryBroker(), nil
	default:
		return nil, fmt.Errorf("not support messaging type %s", cfg.Messaging.Type)
	}
}

// NewCorrelator builds the gateway side of the bridge. Each instance reads responses through
// its own consumer group so every gateway sees every outcome.
func NewCorrelator(cfg config.Config, broker messaging.Broker) (*correlator.Correlator, error) {
	format, err := wire.Lookup(cfg.Messaging.WireFormat)
	if err != nil {
		return nil, err
	}
	group := fmt.Sprintf("%s-%s", cfg.Messaging.GatewayGroupPrefix, uuid.NewString()[:8])
	return correlator.New(broker, format, correlator.Config{
		RequestTopic:    cfg.RequestTopic(),
		ResponseTopic:   cfg.ResponseTopic(),
		Group:           group,
		Timeout:         cfg.Correlator.Timeout,
		SweepInterval:   cfg.Correlator.SweepInterval,
		ResponseWorkers: cfg.Correlator.ResponseWorkers,
	}), nil
}

// NewCalculatorWorker builds the evaluating side of the bridge. Calculators share one group.
func NewCalculatorWorker(cfg config.Config, broker messaging.Broker, evaluator service.CalculatorService, replay cache.ICache) (*calculator.Worker, error) {
	format, err := wire.Lookup(cfg.Messaging.WireFormat)
	if err != nil {
		return nil, err
	}
	return calculator.NewWorker(broker, format, evaluator, replay, calculator.Config{
		RequestTopic:  cfg.RequestTopic(),
		ResponseTopic: cfg.ResponseTopic(),
		Group:         cfg.Messaging.CalculatorGroup,
		Workers:       cfg.Calculator.Workers,
	}), nil
}

// NewReplayCache builds the outcome replay cache. A redis cache that cannot connect falls
// back to memory.
func NewReplayCache(cfg config.Config) cache.ICache {
	switch strings.ToLower(cfg.Calculator.ReplayCache) {
	case config.ReplayCacheNone:
		return cache.New(cache.CacheTypeNone, nil, cfg.Calculator.ReplayTTL, "")
	case config.ReplayCacheRedis:
		rcli, err := clients.EnsureRedis(cfg.Redis)
		if err != nil {
			klog.ErrorS(err, "init redis replay cache failed; falling back to in-memory cache")
			return cache.New(cache.CacheTypeMem, nil, cfg.Calculator.ReplayTTL, "")
		}
		return cache.New(cache.CacheTypeRedis, rcli, cfg.Calculator.ReplayTTL, config.ReplayKeyPrefix)
	default:
		return cache.New(cache.CacheTypeMem, nil, cfg.Calculator.ReplayTTL, "")
	}
}
