package options

import (
	"errors"
	"flag"
	"time"

	"github.com/spf13/pflag"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/klog/v2"

	"calcbridge/pkg/apiserver/config"
)

// ServerRunOptions contains everything necessary to create and run api server
type ServerRunOptions struct {
	GenericServerRunOptions *config.Config
	// ConfigFile is a YAML file keyed by flag name, applied below flags and environment.
	ConfigFile string
	LogMaxAge  time.Duration

	klogFlags *flag.FlagSet
}

// NewServerRunOptions creates a new ServerRunOptions object with default parameters
func NewServerRunOptions() *ServerRunOptions {
	return &ServerRunOptions{
		GenericServerRunOptions: config.NewConfig(),
		LogMaxAge:               7 * 24 * time.Hour,
	}
}

// Flags returns the complete NamedFlagSets
func (s *ServerRunOptions) Flags() (fss cliflag.NamedFlagSets) {
	c := s.GenericServerRunOptions
	defaults := config.NewConfig()

	fs := fss.FlagSet("generic")
	c.AddFlags(fs, defaults)
	fs.StringVar(&s.ConfigFile, "config", s.ConfigFile, "path of a YAML config file keyed by flag name")
	fs.DurationVar(&s.LogMaxAge, "log-max-age", s.LogMaxAge, "klog files older than this are removed from --log_dir")

	c.AddMessagingFlags(fss.FlagSet("messaging"), defaults)
	c.AddKafkaFlags(fss.FlagSet("kafka"), defaults)
	c.AddRedisFlags(fss.FlagSet("redis"), defaults)
	c.AddNATSFlags(fss.FlagSet("nats"), defaults)
	c.AddCorrelatorFlags(fss.FlagSet("correlator"), defaults)
	c.AddCalculatorFlags(fss.FlagSet("calculator"), defaults)

	if s.klogFlags == nil {
		s.klogFlags = flag.NewFlagSet("klog", flag.ContinueOnError)
		klog.InitFlags(s.klogFlags)
	}
	fss.FlagSet("klog").AddGoFlagSet(s.klogFlags)
	return fss
}

// ApplyOverrides fills flags not given on the command line from CALCBRIDGE_* environment
// variables first and from the config file second.
func (s *ServerRunOptions) ApplyOverrides(fs *pflag.FlagSet) error {
	if err := config.ApplyEnvOverrides(fs, config.EnvPrefix); err != nil {
		return err
	}
	return config.ApplyFileOverrides(fs, s.ConfigFile)
}

// Validate checks the server options.
func (s *ServerRunOptions) Validate() error {
	return errors.Join(s.GenericServerRunOptions.Validate()...)
}

// LogDir returns the klog --log_dir value.
func (s *ServerRunOptions) LogDir() string {
	if s.klogFlags == nil {
		return ""
	}
	if f := s.klogFlags.Lookup("log_dir"); f != nil {
		return f.Value.String()
	}
	return ""
}
