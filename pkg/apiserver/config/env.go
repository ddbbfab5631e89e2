package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

// EnvPrefix is the default prefix applied when resolving environment variables for flags.
const EnvPrefix = "CALCBRIDGE"

// lookupFunc resolves a flag name to a value and a description of where it came from.
type lookupFunc func(flag string) (value, source string, ok bool)

// ApplyEnvOverrides walks the provided FlagSet and, for every flag that wasn't set via CLI,
// attempts to read an environment variable matching the flag name.
// For example, the flag "bind-addr" becomes "CALCBRIDGE_BIND_ADDR".
func ApplyEnvOverrides(fs *pflag.FlagSet, prefix string) error {
	return applyOverrides(fs, func(flag string) (string, string, bool) {
		key := buildEnvKey(prefix, flag)
		val, ok := os.LookupEnv(key)
		return val, key, ok
	})
}

// applyOverrides sets every unchanged flag that lookup can resolve. A flag set this way
// counts as changed, so a later, lower-precedence source leaves it alone.
func applyOverrides(fs *pflag.FlagSet, lookup lookupFunc) error {
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		val, source, ok := lookup(f.Name)
		if !ok {
			return
		}
		if err := fs.Set(f.Name, val); err != nil {
			errs = append(errs, fmt.Errorf("apply %s to flag --%s: %w", source, f.Name, err))
		}
	})
	return errors.Join(errs...)
}

func buildEnvKey(prefix, name string) string {
	canonical := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	if strings.TrimSpace(prefix) == "" {
		return canonical
	}
	return strings.ToUpper(prefix) + "_" + canonical
}
