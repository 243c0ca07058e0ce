package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseJWKSEndpoints(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]string
	}{
		{
			name:  "empty string",
			input: "",
			want:  map[string]string{},
		},
		{
			name:  "single pair",
			input: "https://auth.example.com=https://auth.example.com/.well-known/jwks.json",
			want: map[string]string{
				"https://auth.example.com": "https://auth.example.com/.well-known/jwks.json",
			},
		},
		{
			name:  "multiple pairs with whitespace",
			input: "a=1, b=2",
			want:  map[string]string{"a": "1", "b": "2"},
		},
		{
			name:  "malformed pair skipped",
			input: "a=1,not-a-pair,b=2",
			want:  map[string]string{"a": "1", "b": "2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseJWKSEndpoints(tt.input))
		})
	}
}

func TestDatabaseConnectionString(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "tabledeck",
		Password: "s3cret",
		Database: "tabledeck_engine",
		SSLMode:  "require",
	}
	assert.Equal(t,
		"host=db.internal port=5433 user=tabledeck password=s3cret dbname=tabledeck_engine sslmode=require",
		cfg.ConnectionString())
}

func TestIsProduction(t *testing.T) {
	assert.True(t, (&Config{Env: "production"}).IsProduction())
	assert.True(t, (&Config{Env: "prod"}).IsProduction())
	assert.False(t, (&Config{Env: "local"}).IsProduction())
	assert.False(t, (&Config{Env: "staging"}).IsProduction())
}

func TestOAuthProviderConfigured(t *testing.T) {
	assert.False(t, (&OAuthProviderConfig{}).Configured())
	assert.False(t, (&OAuthProviderConfig{ClientID: "x"}).Configured())
	assert.True(t, (&OAuthProviderConfig{
		ClientID: "x",
		AuthURL:  "https://oauth2.example.com/authorize",
		TokenURL: "https://oauth2.example.com/token",
	}).Configured())
}
