package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for tabledeck-engine.
// Values come from config.yaml with environment variable overrides; secrets
// (CREDENTIALS_KEY, PGPASSWORD, OAuth client secrets) are env-only.
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8090"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// CookieDomain overrides the auto-derived cookie domain for the OAuth
	// state cookie. Usually empty.
	CookieDomain string `yaml:"cookie_domain" env:"COOKIE_DOMAIN" env-default:""`

	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Adapter   AdapterConfig   `yaml:"adapter"`
	Audit     AuditConfig     `yaml:"audit"`
	OAuth     OAuthConfig     `yaml:"oauth"`

	// CredentialsKey encrypts integration secrets at rest.
	// Must be a 32-byte key, base64 encoded. Generate with: openssl rand -base64 32
	// The server refuses to start without it.
	CredentialsKey string `yaml:"-" env:"CREDENTIALS_KEY"` // Secret - not in YAML

	// MigrationsPath is the directory holding the engine's own schema migrations.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// AuthConfig holds bearer-token verification settings.
type AuthConfig struct {
	// EnableVerification controls whether JWT signatures are validated.
	// Set to false only for local development without an auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`
}

// DatabaseConfig holds the engine's own PostgreSQL settings (integration
// records and the audit trail live here, not in any external provider).
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"tabledeck"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"tabledeck_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds optional Redis settings for the shared rate-limit
// counter. Leave Host empty to use the in-process limiter.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// RateLimitConfig bounds data operations per (user, provider) pair.
type RateLimitConfig struct {
	WindowSeconds int `yaml:"window_seconds" env:"RATE_LIMIT_WINDOW_SECONDS" env-default:"60"`
	MaxOperations int `yaml:"max_operations" env:"RATE_LIMIT_MAX_OPERATIONS" env-default:"100"`
}

// AdapterConfig bounds each remote provider call.
type AdapterConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds" env:"ADAPTER_TIMEOUT_SECONDS" env-default:"30"`
}

// AuditConfig sizes the asynchronous audit trail buffer.
type AuditConfig struct {
	BufferSize int `yaml:"buffer_size" env:"AUDIT_BUFFER_SIZE" env-default:"1000"`
}

// OAuthConfig holds client registrations for the OAuth-capable providers.
type OAuthConfig struct {
	Neon   OAuthProviderConfig `yaml:"neon" env-prefix:"OAUTH_NEON_"`
	Convex OAuthProviderConfig `yaml:"convex" env-prefix:"OAUTH_CONVEX_"`
}

// OAuthProviderConfig is one provider's OAuth client registration.
type OAuthProviderConfig struct {
	ClientID     string `yaml:"client_id" env:"CLIENT_ID" env-default:""`
	ClientSecret string `yaml:"-" env:"CLIENT_SECRET"` // Secret - not in YAML
	AuthURL      string `yaml:"auth_url" env:"AUTH_URL" env-default:""`
	TokenURL     string `yaml:"token_url" env:"TOKEN_URL" env-default:""`
	Scopes       string `yaml:"scopes" env:"SCOPES" env-default:""`
}

// Configured reports whether the provider's OAuth client is usable.
func (c *OAuthProviderConfig) Configured() bool {
	return c.ClientID != "" && c.TokenURL != "" && c.AuthURL != ""
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		// Fall back to env-only configuration when no YAML file is present.
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read configuration: %w", err)
		}
	}

	cfg.Auth.JWKSEndpoints = parseJWKSEndpoints(cfg.Auth.JWKSEndpointsStr)

	if cfg.CredentialsKey == "" {
		return nil, fmt.Errorf("CREDENTIALS_KEY is required (openssl rand -base64 32)")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// IsProduction reports whether the server runs in a production environment.
// Error envelopes omit internal detail in production.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	for _, pair := range strings.Split(value, ",") {
		parts := strings.Split(pair, "=")
		if len(parts) == 2 {
			endpoints[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return endpoints
}

// ConnectionString returns a PostgreSQL connection string for the engine DB.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
