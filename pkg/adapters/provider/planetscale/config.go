package planetscale

import (
	"fmt"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/tabledeck/tabledeck-engine/pkg/adapters/provider"
	engcfg "github.com/tabledeck/tabledeck-engine/pkg/config"
)

// Config contains the MySQL-compatible connection options.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
	ReadOnly bool
}

// DefaultPort returns the default MySQL port.
func DefaultPort() int {
	return 3306
}

// FromMap creates a Config from a decrypted credential map.
func FromMap(config map[string]string) (*Config, error) {
	cfg := &Config{
		Port:     DefaultPort(),
		ReadOnly: provider.ConfigBool(config, "read_only"),
	}

	var err error
	if cfg.Host, err = provider.RequireConfig(config, "host"); err != nil {
		return nil, err
	}
	if cfg.Username, err = provider.RequireConfig(config, "username"); err != nil {
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

	return cfg, nil
}

// driverConfig builds the go-sql-driver config. The hosted service requires
// TLS, so it is always on. ParseTime keeps timestamps as time.Time instead
// of raw bytes.
func (c *Config) driverConfig() *mysql.Config {
	dc := mysql.NewConfig()
	dc.User = c.Username
	dc.Passwd = c.Password
	dc.Net = "tcp"
	dc.Addr = fmt.Sprintf("%s:%d", engcfg.ResolveHostForDocker(c.Host), c.Port)
	dc.DBName = c.Database
	dc.ParseTime = true
	dc.TLSConfig = "true"
	return dc
}
