package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ApplyFileOverrides reads a YAML (or any viper supported) config file whose keys are flag names,
// e.g. `msg-type: kafka`, and applies it to every flag not already set by CLI or environment.
func ApplyFileOverrides(fs *pflag.FlagSet, path string) error {
	if path == "" {
		return nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	return applyOverrides(fs, func(flag string) (string, string, bool) {
		if !v.IsSet(flag) {
			return "", "", false
		}
		source := path + ":" + flag
		switch raw := v.Get(flag).(type) {
		case []interface{}:
			return strings.Join(cast.ToStringSlice(raw), ","), source, true
		case []string:
			return strings.Join(raw, ","), source, true
		default:
			return cast.ToString(raw), source, true
		}
	})
}
