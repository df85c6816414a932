package config

import (
	"errors"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering, lowest precedence first:
//  1. defaults (New())
//  2. YAML file named by PRICEMAP_CONFIG, if set
//  3. environment variables with the PRICEMAP_ prefix
//
// Env keys map PRICEMAP_DATA_BASE_URL -> data_base_url, matching the
// koanf tags on Config.
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("PRICEMAP_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	envProvider := env.Provider("PRICEMAP_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "pricemap_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	if cfg.Addr == "" {
		return nil, errors.New("addr must not be empty")
	}
	if cfg.DataBaseURL == "" {
		return nil, errors.New("data_base_url must not be empty")
	}
	if cfg.CrossfadeDuration <= 0 {
		cfg.CrossfadeDuration = New().CrossfadeDuration
	}
	return &cfg, nil
}
