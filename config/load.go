package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Load reads the YAML file at path and overlays environment variables.
// An empty path or a missing file falls back to environment and defaults.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig
	path = strings.TrimSpace(path)
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			return &cfg, cfg.Validate()
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return &cfg, cfg.Validate()
}

func (c *AppConfig) Validate() error {
	switch c.DBDriver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported db_driver %q", c.DBDriver)
	}
	if c.RateLimit.Limit < 0 {
		return errors.New("rate_limit.limit must not be negative")
	}
	if c.Cache.MaxSize < 0 {
		return errors.New("cache.max_size must not be negative")
	}
	return nil
}
