package turso

import (
	"strings"

	"github.com/tabledeck/tabledeck-engine/pkg/adapters/provider"
)

// Config contains the edge SQLite connection options.
type Config struct {
	URL       string // https endpoint of the database
	AuthToken string
	ReadOnly  bool // token is scoped to reads only
}

// FromMap creates a Config from a decrypted credential map.
func FromMap(config map[string]string) (*Config, error) {
	cfg := &Config{
		ReadOnly: provider.ConfigBool(config, "read_only"),
	}

	var err error
	if cfg.URL, err = provider.RequireConfig(config, "url"); err != nil {
		return nil, err
	}
	if cfg.AuthToken, err = provider.RequireConfig(config, "auth_token"); err != nil {
		return nil, err
	}

	// accept libsql:// URLs as issued by the CLI
	cfg.URL = strings.TrimSuffix(cfg.URL, "/")
	if strings.HasPrefix(cfg.URL, "libsql://") {
		cfg.URL = "https://" + strings.TrimPrefix(cfg.URL, "libsql://")
	}
	return cfg, nil
}
