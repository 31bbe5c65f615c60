package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

const (
	envPrefix      = "WHISPERD_"
	defaultEnvFile = ".env"
)

func envKey(flagName string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// loadEnv returns a lookup over the process environment with the dotenv file
// underneath it. Process variables win, as with godotenv.Load.
func (a *appState) loadEnv(flags *pflag.FlagSet) (func(string) (string, bool), error) {
	lookup := a.lookupEnv
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}

	path := a.envFile
	explicit := false
	if f := flags.Lookup("env-file"); f != nil && f.Changed {
		explicit = true
	} else if v, ok := lookup(envKey("env-file")); ok && v != "" {
		path, explicit = v, true
	}
	if strings.TrimSpace(path) == "" {
		return lookup, nil
	}

	values, err := godotenv.Read(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return lookup, nil
		}
		return nil, fmt.Errorf("load env file %s: %w", path, err)
	}

	return func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := values[key]
		return v, ok
	}, nil
}

// applyEnvOverrides fills every flag the user did not set from WHISPERD_<FLAG>.
func applyEnvOverrides(flags *pflag.FlagSet, lookup func(string) (string, bool)) error {
	var errs []error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed || f.Name == "help" || f.Name == "version" || f.Name == "env-file" {
			return
		}
		v, ok := lookup(envKey(f.Name))
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		if err := flags.Set(f.Name, strings.TrimSpace(v)); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s=%q: %w", envKey(f.Name), v, err))
		}
	})
	return errors.Join(errs...)
}
