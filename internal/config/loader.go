package config

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const (
	envPrefix  = "ENSEMBLE_"
	envConfig  = "ENSEMBLE_CONFIG"
	dotEnvFile = ".env"
)

// Load builds a Config by layering, from low to high precedence:
//  1. defaults (New)
//  2. YAML file named by ENSEMBLE_CONFIG
//  3. env (prefix ENSEMBLE_), after .env has been merged into the process env
func Load(_ context.Context) (*Config, error) {
	// .env is optional; real env vars win over it.
	_ = godotenv.Load(dotEnvFile)

	base := New()
	k := koanf.New(".")

	if path := os.Getenv(envConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(ErrLoadConfig, "read %s: %v", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, errors.Wrapf(ErrLoadConfig, "read env: %v", err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.Wrapf(ErrLoadConfig, "decode: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return errors.Wrap(ErrInvalidConfig, "addr must not be empty")
	case c.DatabaseURL == "":
		return errors.Wrap(ErrInvalidConfig, "database_url must not be empty")
	case c.TokenSecret == "":
		return errors.Wrap(ErrInvalidConfig, "token_secret must not be empty")
	case c.SchedulerInterval <= 0:
		return errors.Wrap(ErrInvalidConfig, "scheduler_interval must be positive")
	case c.StorageTimeout <= 0:
		return errors.Wrap(ErrInvalidConfig, "storage_timeout must be positive")
	case c.MaxConns <= 0:
		return errors.Wrap(ErrInvalidConfig, "max_conns must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "timezone %q: %v", c.Timezone, err)
	}
	return nil
}
