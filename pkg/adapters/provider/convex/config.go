package convex

import (
	"strings"

	"github.com/tabledeck/tabledeck-engine/pkg/adapters/provider"
)

// Config contains the document store connection options. The access token
// comes from the OAuth exchange or a manually issued deploy key.
type Config struct {
	DeploymentURL string
	AccessToken   string
}

// FromMap creates a Config from a decrypted credential map.
func FromMap(config map[string]string) (*Config, error) {
	cfg := &Config{}

	var err error
	if cfg.DeploymentURL, err = provider.RequireConfig(config, "deployment_url"); err != nil {
		return nil, err
	}
	if cfg.AccessToken, err = provider.RequireConfig(config, "access_token"); err != nil {
		return nil, err
	}
	cfg.DeploymentURL = strings.TrimSuffix(cfg.DeploymentURL, "/")
	return cfg, nil
}
