package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func newFlagSet(cfg *Config) *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	defaults := NewConfig()
	cfg.AddFlags(fs, defaults)
	cfg.AddMessagingFlags(fs, defaults)
	cfg.AddKafkaFlags(fs, defaults)
	cfg.AddRedisFlags(fs, defaults)
	cfg.AddNATSFlags(fs, defaults)
	cfg.AddCorrelatorFlags(fs, defaults)
	cfg.AddCalculatorFlags(fs, defaults)
	return fs
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	require.Empty(t, cfg.Validate())
	require.Equal(t, "calculator-requests", cfg.RequestTopic())
	require.Equal(t, "calculator-responses", cfg.ResponseTopic())
	require.Equal(t, WireFormatLegacy, cfg.Messaging.WireFormat)
	require.True(t, cfg.RunsGateway())
	require.True(t, cfg.RunsCalculator())
	require.False(t, cfg.HasExternalQueue())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		valid  bool
	}{
		{"unknown role", func(c *Config) { c.Role = "proxy" }, false},
		{"memory broker split roles", func(c *Config) { c.Role = RoleGateway }, false},
		{"kafka gateway", func(c *Config) { c.Role = RoleGateway; c.Messaging.Type = MessagingKafka }, true},
		{"kafka without brokers", func(c *Config) { c.Messaging.Type = MessagingKafka; c.Kafka.Brokers = nil }, false},
		{"unknown broker", func(c *Config) { c.Messaging.Type = "amqp" }, false},
		{"bad wire format", func(c *Config) { c.Messaging.WireFormat = "xml" }, false},
		{"same topics", func(c *Config) { c.Messaging.ResponseTopic = c.Messaging.RequestTopic }, false},
		{"zero timeout", func(c *Config) { c.Correlator.Timeout = 0 }, false},
		{"zero workers", func(c *Config) { c.Calculator.Workers = 0 }, false},
		{"bad replay cache", func(c *Config) { c.Calculator.ReplayCache = "disk" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if tt.valid {
				require.Empty(t, errs)
			} else {
				require.NotEmpty(t, errs)
			}
		})
	}
}

func TestTopicPrefix(t *testing.T) {
	cfg := NewConfig()
	cfg.Messaging.TopicPrefix = "staging."
	require.Equal(t, "staging.calculator-requests", cfg.RequestTopic())
	require.Equal(t, "staging.calculator-responses", cfg.ResponseTopic())
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := NewConfig()
	fs := newFlagSet(cfg)
	require.NoError(t, fs.Parse([]string{"--role=gateway"}))

	t.Setenv("CALCBRIDGE_ROLE", "calculator")
	t.Setenv("CALCBRIDGE_MSG_TYPE", "kafka")
	t.Setenv("CALCBRIDGE_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CALCBRIDGE_REQUEST_TIMEOUT", "5s")

	require.NoError(t, ApplyEnvOverrides(fs, EnvPrefix))
	require.Equal(t, RoleGateway, cfg.Role, "cli flag wins over env")
	require.Equal(t, MessagingKafka, cfg.Messaging.Type)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, 5*time.Second, cfg.Correlator.Timeout)
}

func TestApplyEnvOverridesInvalidValue(t *testing.T) {
	cfg := NewConfig()
	fs := newFlagSet(cfg)
	t.Setenv("CALCBRIDGE_REDIS_PORT", "not-a-port")
	err := ApplyEnvOverrides(fs, EnvPrefix)
	require.Error(t, err)
	require.Contains(t, err.Error(), "CALCBRIDGE_REDIS_PORT")
}

func TestBuildEnvKey(t *testing.T) {
	require.Equal(t, "CALCBRIDGE_BIND_ADDR", buildEnvKey("calcbridge", "bind-addr"))
	require.Equal(t, "BIND_ADDR", buildEnvKey(" ", "bind-addr"))
}

func TestApplyFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "calcbridge.yaml")
	content := `
msg-type: redis
redis-port: 6380
kafka-brokers:
  - a:9092
  - b:9092
wire-format: json
request-timeout: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := NewConfig()
	fs := newFlagSet(cfg)
	t.Setenv("CALCBRIDGE_WIRE_FORMAT", "legacy")
	require.NoError(t, ApplyEnvOverrides(fs, EnvPrefix))
	require.NoError(t, ApplyFileOverrides(fs, path))

	require.Equal(t, MessagingRedis, cfg.Messaging.Type)
	require.Equal(t, 6380, cfg.Redis.Port)
	require.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, WireFormatLegacy, cfg.Messaging.WireFormat, "env wins over file")
	require.Equal(t, 2*time.Second, cfg.Correlator.Timeout)
}

func TestApplyFileOverridesMissingFile(t *testing.T) {
	fs := newFlagSet(NewConfig())
	require.NoError(t, ApplyFileOverrides(fs, ""))
	require.Error(t, ApplyFileOverrides(fs, filepath.Join(t.TempDir(), "absent.yaml")))
}
