package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Provider identifies one external database backend.
type Provider string

const (
	ProviderSupabase    Provider = "supabase"
	ProviderNeon        Provider = "neon"
	ProviderPlanetScale Provider = "planetscale"
	ProviderTurso       Provider = "turso"
	ProviderConvex      Provider = "convex"
)

// Providers lists every supported provider.
func Providers() []Provider {
	return []Provider{
		ProviderSupabase,
		ProviderNeon,
		ProviderPlanetScale,
		ProviderTurso,
		ProviderConvex,
	}
}

// ParseProvider validates a provider name from the request path.
func ParseProvider(s string) (Provider, error) {
	p := Provider(s)
	switch p {
	case ProviderSupabase, ProviderNeon, ProviderPlanetScale, ProviderTurso, ProviderConvex:
		return p, nil
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// SupportsOAuth reports whether the provider can be connected via OAuth.
func (p Provider) SupportsOAuth() bool {
	return p == ProviderNeon || p == ProviderConvex
}

// Integration is the stored link between one user and one provider.
// Config values are ciphertext in the repository layer and are only decrypted
// transiently inside an adapter call. At most one record exists per
// (user_id, provider) pair; disconnect deactivates, it never deletes.
type Integration struct {
	ID          uuid.UUID         `json:"id"`
	UserID      string            `json:"user_id"`
	Provider    Provider          `json:"provider"`
	Config      map[string]string `json:"-"`
	IsActive    bool              `json:"is_active"`
	ConnectedAt time.Time         `json:"connected_at"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}
