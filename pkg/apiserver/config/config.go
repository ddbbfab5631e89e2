package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"calcbridge/pkg/apiserver/utils/profiling"
)

type Config struct {
	// api server bind address
	BindAddr string

	// Role selects which side of the bridge this process runs: gateway, calculator or all.
	Role string

	// EnableTracing enables distributed tracing
	EnableTracing bool

	// OTLPEndpoint is the host:port of the OTLP HTTP collector. Empty disables export.
	OTLPEndpoint string

	// ServiceName is reported as the otel service.name resource attribute
	ServiceName string

	CORS CORSConfig

	Messaging MessagingConfig

	Kafka KafkaConfig

	Redis RedisConfig

	NATS NATSConfig

	Correlator CorrelatorConfig

	Calculator CalculatorConfig
}

// MessagingConfig holds pub/sub configuration
type MessagingConfig struct {
	Type          string // memory|redis|kafka|nats
	RequestTopic  string
	ResponseTopic string
	// TopicPrefix is prepended to both topic names.
	TopicPrefix string
	// WireFormat selects the payload codec: legacy|json
	WireFormat string
	// CalculatorGroup is the consumer group shared by every calculator.
	CalculatorGroup string
	// GatewayGroupPrefix prefixes the per-instance response group of a gateway.
	GatewayGroupPrefix string
}

// CORSConfig configures cross-origin access to the front door.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

type KafkaConfig struct {
	Brokers      []string
	ClientID     string
	RequiredAcks int
}

type RedisConfig struct {
	Host     string
	Port     int
	DB       int64
	UserName string
	Password string
	// StreamMaxLen trims streams with XADD MAXLEN ~ when > 0.
	StreamMaxLen int64
	ReadBlock    time.Duration
	ClaimIdle    time.Duration
}

type NATSConfig struct {
	URL string
}

type CorrelatorConfig struct {
	// Timeout is used when the caller does not supply one.
	Timeout         time.Duration
	SweepInterval   time.Duration
	ResponseWorkers int
}

type CalculatorConfig struct {
	Workers int
	// ReplayCache stores outcomes for redelivered requests: memory|redis|none
	ReplayCache string
	ReplayTTL   time.Duration
}

func NewConfig() *Config {
	return &Config{
		BindAddr:      "0.0.0.0:8000",
		Role:          RoleAll,
		EnableTracing: false,
		ServiceName:   "calcbridge",
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			MaxAge:         12 * time.Hour,
		},
		Messaging: MessagingConfig{
			Type:               MessagingMemory,
			RequestTopic:       DefaultRequestTopic,
			ResponseTopic:      DefaultResponseTopic,
			WireFormat:         WireFormatLegacy,
			CalculatorGroup:    DefaultCalculatorGroup,
			GatewayGroupPrefix: DefaultGatewayGroupPrefix,
		},
		Kafka: KafkaConfig{
			Brokers:      []string{"localhost:9092"},
			ClientID:     "calcbridge",
			RequiredAcks: 1,
		},
		Redis: RedisConfig{
			Host:      "localhost",
			Port:      6379,
			ReadBlock: time.Second,
			ClaimIdle: 30 * time.Second,
		},
		NATS: NATSConfig{URL: "nats://127.0.0.1:4222"},
		Correlator: CorrelatorConfig{
			Timeout:         DefaultRequestTimeout,
			SweepInterval:   DefaultSweepInterval,
			ResponseWorkers: 4,
		},
		Calculator: CalculatorConfig{
			Workers:     8,
			ReplayCache: ReplayCacheMemory,
			ReplayTTL:   10 * time.Minute,
		},
	}
}

func (c *Config) Validate() []error {
	var errs []error
	switch c.Role {
	case RoleGateway, RoleCalculator, RoleAll:
	default:
		errs = append(errs, fmt.Errorf("role must be one of gateway|calculator|all, got %q", c.Role))
	}
	switch strings.ToLower(c.Messaging.Type) {
	case MessagingMemory:
		if c.Role != RoleAll {
			errs = append(errs, fmt.Errorf("msg-type memory requires --role=all"))
		}
	case MessagingRedis, MessagingNATS:
	case MessagingKafka:
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, fmt.Errorf("kafka-brokers cannot be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("msg-type must be one of memory|redis|kafka|nats, got %q", c.Messaging.Type))
	}
	switch c.Messaging.WireFormat {
	case WireFormatLegacy, WireFormatJSON:
	default:
		errs = append(errs, fmt.Errorf("wire-format must be legacy or json, got %q", c.Messaging.WireFormat))
	}
	if c.Messaging.RequestTopic == "" || c.Messaging.ResponseTopic == "" {
		errs = append(errs, fmt.Errorf("request and response topics cannot be empty"))
	} else if c.RequestTopic() == c.ResponseTopic() {
		errs = append(errs, fmt.Errorf("request and response topics must differ"))
	}
	if c.Correlator.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("request-timeout must be positive"))
	}
	if c.Correlator.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("sweep-interval must be positive"))
	}
	if c.Correlator.ResponseWorkers < 1 {
		errs = append(errs, fmt.Errorf("response-workers must be at least 1"))
	}
	if c.Calculator.Workers < 1 {
		errs = append(errs, fmt.Errorf("calculator-workers must be at least 1"))
	}
	switch c.Calculator.ReplayCache {
	case ReplayCacheMemory, ReplayCacheNone:
	case ReplayCacheRedis:
		if c.Messaging.Type != MessagingRedis && c.Redis.Host == "" {
			errs = append(errs, fmt.Errorf("replay-cache redis requires redis-host"))
		}
	default:
		errs = append(errs, fmt.Errorf("replay-cache must be memory|redis|none, got %q", c.Calculator.ReplayCache))
	}
	return errs
}

// AddFlags adds flags to the specified FlagSet
func (c *Config) AddFlags(fs *pflag.FlagSet, configParameter *Config) {
	fs.StringVar(&c.BindAddr, "bind-addr", configParameter.BindAddr, "The bind address used to serve the http APIs.")
	fs.StringVar(&c.Role, "role", configParameter.Role, "process role: gateway|calculator|all")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", configParameter.EnableTracing, "Enable distributed tracing.")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", configParameter.OTLPEndpoint, "The host:port of the OTLP HTTP trace collector.")
	fs.StringVar(&c.ServiceName, "service-name", configParameter.ServiceName, "service name reported with traces")
	fs.StringSliceVar(&c.CORS.AllowedOrigins, "cors-allowed-origins", configParameter.CORS.AllowedOrigins, "origins allowed to call the http APIs, * for any")
	fs.BoolVar(&c.CORS.AllowCredentials, "cors-allow-credentials", configParameter.CORS.AllowCredentials, "allow credentials on cross-origin requests")
	fs.DurationVar(&c.CORS.MaxAge, "cors-max-age", configParameter.CORS.MaxAge, "how long preflight results may be cached")
	// profiling flags live in the profiling package; wire them here for convenience
	profiling.AddFlags(fs)
}

// AddMessagingFlags registers broker selection and topic flags.
func (c *Config) AddMessagingFlags(fs *pflag.FlagSet, configParameter *Config) {
	fs.StringVar(&c.Messaging.Type, "msg-type", configParameter.Messaging.Type, "messaging broker type: memory|redis|kafka|nats")
	fs.StringVar(&c.Messaging.RequestTopic, "request-topic", configParameter.Messaging.RequestTopic, "topic carrying operation requests")
	fs.StringVar(&c.Messaging.ResponseTopic, "response-topic", configParameter.Messaging.ResponseTopic, "topic carrying operation outcomes")
	fs.StringVar(&c.Messaging.TopicPrefix, "msg-topic-prefix", configParameter.Messaging.TopicPrefix, "prefix prepended to both topics")
	fs.StringVar(&c.Messaging.WireFormat, "wire-format", configParameter.Messaging.WireFormat, "payload format: legacy|json")
	fs.StringVar(&c.Messaging.CalculatorGroup, "calculator-group", configParameter.Messaging.CalculatorGroup, "consumer group shared by calculators")
	fs.StringVar(&c.Messaging.GatewayGroupPrefix, "gateway-group-prefix", configParameter.Messaging.GatewayGroupPrefix, "prefix of the per-instance gateway response group")
}

// AddKafkaFlags registers Kafka connection flags.
func (c *Config) AddKafkaFlags(fs *pflag.FlagSet, configParameter *Config) {
	fs.StringSliceVar(&c.Kafka.Brokers, "kafka-brokers", configParameter.Kafka.Brokers, "comma separated kafka broker addresses")
	fs.StringVar(&c.Kafka.ClientID, "kafka-client-id", configParameter.Kafka.ClientID, "kafka client id")
	fs.IntVar(&c.Kafka.RequiredAcks, "kafka-required-acks", configParameter.Kafka.RequiredAcks, "required acks: -1 all, 0 none, 1 leader")
}

// AddRedisFlags registers Redis connection flags. The same client backs streams and the replay cache.
func (c *Config) AddRedisFlags(fs *pflag.FlagSet, configParameter *Config) {
	fs.StringVar(&c.Redis.Host, "redis-host", configParameter.Redis.Host, "redis host")
	fs.IntVar(&c.Redis.Port, "redis-port", configParameter.Redis.Port, "redis port")
	fs.Int64Var(&c.Redis.DB, "redis-db", configParameter.Redis.DB, "redis database index")
	fs.StringVar(&c.Redis.UserName, "redis-username", configParameter.Redis.UserName, "redis username")
	fs.StringVar(&c.Redis.Password, "redis-password", configParameter.Redis.Password, "redis password")
	fs.Int64Var(&c.Redis.StreamMaxLen, "redis-stream-maxlen", configParameter.Redis.StreamMaxLen, "approximate stream length cap, 0 disables trimming")
	fs.DurationVar(&c.Redis.ReadBlock, "redis-read-block", configParameter.Redis.ReadBlock, "XREADGROUP block time")
	fs.DurationVar(&c.Redis.ClaimIdle, "redis-claim-idle", configParameter.Redis.ClaimIdle, "idle time before unacknowledged entries are claimed, 0 disables")
}

// AddNATSFlags registers NATS connection flags.
func (c *Config) AddNATSFlags(fs *pflag.FlagSet, configParameter *Config) {
	fs.StringVar(&c.NATS.URL, "nats-url", configParameter.NATS.URL, "nats server url")
}

// AddCorrelatorFlags registers gateway side tuning flags.
func (c *Config) AddCorrelatorFlags(fs *pflag.FlagSet, configParameter *Config) {
	fs.DurationVar(&c.Correlator.Timeout, "request-timeout", configParameter.Correlator.Timeout, "default time to wait for an outcome")
	fs.DurationVar(&c.Correlator.SweepInterval, "sweep-interval", configParameter.Correlator.SweepInterval, "how often expired pending requests are reclaimed")
	fs.IntVar(&c.Correlator.ResponseWorkers, "response-workers", configParameter.Correlator.ResponseWorkers, "goroutines consuming the response topic")
}

// AddCalculatorFlags registers calculator side tuning flags.
func (c *Config) AddCalculatorFlags(fs *pflag.FlagSet, configParameter *Config) {
	fs.IntVar(&c.Calculator.Workers, "calculator-workers", configParameter.Calculator.Workers, "maximum requests evaluated concurrently")
	fs.StringVar(&c.Calculator.ReplayCache, "replay-cache", configParameter.Calculator.ReplayCache, "outcome replay cache for redelivered requests: memory|redis|none")
	fs.DurationVar(&c.Calculator.ReplayTTL, "replay-ttl", configParameter.Calculator.ReplayTTL, "how long outcomes are kept for replay")
}

// RequestTopic returns the effective request topic name.
func (c Config) RequestTopic() string {
	return c.Messaging.TopicPrefix + c.Messaging.RequestTopic
}

// ResponseTopic returns the effective response topic name.
func (c Config) ResponseTopic() string {
	return c.Messaging.TopicPrefix + c.Messaging.ResponseTopic
}

// HasExternalQueue returns true if a non-memory messaging backend is configured.
func (c Config) HasExternalQueue() bool {
	t := strings.ToLower(strings.TrimSpace(c.Messaging.Type))
	return t != "" && t != MessagingMemory
}

// RunsGateway reports whether the front door and correlator run in this process.
func (c Config) RunsGateway() bool { return c.Role == RoleGateway || c.Role == RoleAll }

// RunsCalculator reports whether the evaluator runs in this process.
func (c Config) RunsCalculator() bool { return c.Role == RoleCalculator || c.Role == RoleAll }
