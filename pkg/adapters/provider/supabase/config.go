package supabase

import (
	"strings"

	"github.com/tabledeck/tabledeck-engine/pkg/adapters/provider"
)

// Config contains the PostgREST connection options. The anon key is subject
// to row-level security; the service key bypasses it and is required for raw
// SQL and DDL.
type Config struct {
	URL        string
	AnonKey    string
	ServiceKey string
}

// FromMap creates a Config from a decrypted credential map.
func FromMap(config map[string]string) (*Config, error) {
	cfg := &Config{
		ServiceKey: strings.TrimSpace(config["service_key"]),
	}

	var err error
	if cfg.URL, err = provider.RequireConfig(config, "url"); err != nil {
		return nil, err
	}
	if cfg.AnonKey, err = provider.RequireConfig(config, "anon_key"); err != nil {
		return nil, err
	}
	cfg.URL = strings.TrimSuffix(cfg.URL, "/")
	return cfg, nil
}

// Elevated reports whether the stored credential includes the service key.
func (c *Config) Elevated() bool {
	return c.ServiceKey != ""
}

// key returns the strongest credential available. Dashboard reads and writes
// use the service key when stored so listings are not silently filtered by
// row-level security.
func (c *Config) key() string {
	if c.ServiceKey != "" {
		return c.ServiceKey
	}
	return c.AnonKey
}
