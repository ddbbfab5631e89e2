package config

import "time"

const (
	RoleGateway    = "gateway"
	RoleCalculator = "calculator"
	RoleAll        = "all"
)

const (
	MessagingMemory = "memory"
	MessagingRedis  = "redis"
	MessagingKafka  = "kafka"
	MessagingNATS   = "nats"
)

const (
	WireFormatLegacy = "legacy"
	WireFormatJSON   = "json"
)

const (
	ReplayCacheMemory = "memory"
	ReplayCacheRedis  = "redis"
	ReplayCacheNone   = "none"
)

const (
	DefaultRequestTopic       = "calculator-requests"
	DefaultResponseTopic      = "calculator-responses"
	DefaultCalculatorGroup    = "calculator-group"
	DefaultGatewayGroupPrefix = "calcbridge-gateway"

	DefaultRequestTimeout = 30 * time.Second
	DefaultSweepInterval  = time.Second

	// ReplayKeyPrefix namespaces replay cache entries in Redis.
	ReplayKeyPrefix = "calcbridge:replay:"

	DefaultWorkerBackoffMin = 200 * time.Millisecond
	DefaultWorkerBackoffMax = 5 * time.Second
)
