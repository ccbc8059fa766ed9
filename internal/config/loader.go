package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables read by Load.
const (
	EnvConfigPath = "TALLY_CONFIG"
	envPrefix     = "TALLY_"
	aliasPrefix   = "SUPABASE_"
)

// aliases maps hosted-database variables onto config keys.
var aliases = map[string]string{
	"SUPABASE_URL":              "store_url",
	"SUPABASE_SERVICE_ROLE_KEY": "service_key",
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if TALLY_CONFIG is set
//  3. SUPABASE_URL / SUPABASE_SERVICE_ROLE_KEY
//  4. env (prefix TALLY_)
func Load(ctx context.Context) (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(EnvConfigPath); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	aliasProvider := env.Provider(aliasPrefix, ".", func(s string) string {
		// Unmapped SUPABASE_ variables are skipped.
		return aliases[s]
	})
	if err := k.Load(aliasProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// TALLY_STORE_URL -> store_url (flat keys, underscores preserved).
	envProvider := env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, any) {
		key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
		switch key {
		case "low_quality_phrases", "sqlite_seed_users":
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := New(ctx)
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.StoreURL = strings.TrimRight(cfg.StoreURL, "/")
	cfg.MetricsNamespace = strings.TrimSpace(cfg.MetricsNamespace)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList turns "a, b,c" into ["a" "b" "c"], dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
