package neon

import (
	"fmt"
	"net/url"
	"strconv"

	engcfg "github.com/tabledeck/tabledeck-engine/pkg/config"
	"github.com/tabledeck/tabledeck-engine/pkg/adapters/provider"
)

// Config contains the direct-SQL PostgreSQL connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "require", "verify-ca", "verify-full"
	ReadOnly bool   // credential is not allowed to run write statements
}

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// DefaultSSLMode returns the default SSL mode. Hosted Postgres requires TLS.
func DefaultSSLMode() string {
	return "require"
}

// FromMap creates a Config from a decrypted credential map.
func FromMap(config map[string]string) (*Config, error) {
	cfg := &Config{
		Port:     DefaultPort(),
		SSLMode:  DefaultSSLMode(),
		ReadOnly: provider.ConfigBool(config, "read_only"),
	}

	var err error
	if cfg.Host, err = provider.RequireConfig(config, "host"); err != nil {
		return nil, err
	}
	if cfg.User, err = provider.RequireConfig(config, "user"); err != nil {
		return nil, err
	}
	if cfg.Database, err = provider.RequireConfig(config, "database"); err != nil {
		return nil, err
	}
	cfg.Password = config["password"]

	if raw, ok := config["port"]; ok && raw != "" {
		port, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return nil, fmt.Errorf("invalid port %q: %w", raw, convErr)
		}
		cfg.Port = port
	}
	if mode, ok := config["ssl_mode"]; ok && mode != "" {
		cfg.SSLMode = mode
	}

	return cfg, nil
}

// connectionString builds a PostgreSQL URL with proper escaping.
// All user-provided fields are URL-escaped to handle special characters in
// passwords (e.g. @, /, #, ?) that would otherwise break URL parsing. When
// running in Docker, localhost is resolved to host.docker.internal.
func (c *Config) connectionString() string {
	host := engcfg.ResolveHostForDocker(c.Host)
	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		host,
		c.Port,
		url.QueryEscape(c.Database),
		c.SSLMode,
	)
}
