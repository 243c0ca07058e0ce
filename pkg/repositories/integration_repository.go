// Package repositories provides data access for the engine's own PostgreSQL
// storage: integration records and the audit trail.
package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tabledeck/tabledeck-engine/pkg/database"
	"github.com/tabledeck/tabledeck-engine/pkg/models"
)

// IntegrationRepository persists credential records. Config values are
// ciphertext - encryption and decryption happen in the service layer.
type IntegrationRepository interface {
	// FindByUserAndProvider returns the record for (userID, provider), or
	// (nil, nil) when no record exists.
	FindByUserAndProvider(ctx context.Context, userID string, provider models.Provider) (*models.Integration, error)

	// Upsert creates or replaces the record for (userID, provider): secrets
	// are rotated, connected_at refreshed and the record reactivated.
	Upsert(ctx context.Context, userID string, provider models.Provider, config map[string]string) (*models.Integration, error)

	// Deactivate soft-disconnects the record. The record is never deleted.
	Deactivate(ctx context.Context, userID string, provider models.Provider) error

	// ListByUser returns all records for a user, newest connection first.
	ListByUser(ctx context.Context, userID string) ([]*models.Integration, error)
}

type integrationRepository struct {
	db *database.DB
}

// NewIntegrationRepository creates a Postgres-backed IntegrationRepository.
func NewIntegrationRepository(db *database.DB) IntegrationRepository {
	return &integrationRepository{db: db}
}

var _ IntegrationRepository = (*integrationRepository)(nil)

const integrationColumns = `id, user_id, provider, config, is_active, connected_at, created_at, updated_at`

func (r *integrationRepository) FindByUserAndProvider(ctx context.Context, userID string, provider models.Provider) (*models.Integration, error) {
	query := `
		SELECT ` + integrationColumns + `
		FROM integrations
		WHERE user_id = $1 AND provider = $2`

	row := r.db.QueryRow(ctx, query, userID, string(provider))
	integration, err := scanIntegration(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load integration: %w", err)
	}
	return integration, nil
}

func (r *integrationRepository) Upsert(ctx context.Context, userID string, provider models.Provider, config map[string]string) (*models.Integration, error) {
	configJSON, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}

	now := time.Now()
	query := `
		INSERT INTO integrations (user_id, provider, config, is_active, connected_at, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, $4, $4, $4)
		ON CONFLICT ON CONSTRAINT integrations_user_provider_key
		DO UPDATE SET config = EXCLUDED.config,
		              is_active = TRUE,
		              connected_at = EXCLUDED.connected_at,
		              updated_at = EXCLUDED.updated_at
		RETURNING ` + integrationColumns

	row := r.db.QueryRow(ctx, query, userID, string(provider), configJSON, now)
	integration, err := scanIntegration(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert integration: %w", err)
	}
	return integration, nil
}

func (r *integrationRepository) Deactivate(ctx context.Context, userID string, provider models.Provider) error {
	query := `
		UPDATE integrations
		SET is_active = FALSE, updated_at = $3
		WHERE user_id = $1 AND provider = $2`

	tag, err := r.db.Exec(ctx, query, userID, string(provider), time.Now())
	if err != nil {
		return fmt.Errorf("failed to deactivate integration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *integrationRepository) ListByUser(ctx context.Context, userID string) ([]*models.Integration, error) {
	query := `
		SELECT ` + integrationColumns + `
		FROM integrations
		WHERE user_id = $1
		ORDER BY connected_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	defer rows.Close()

	var integrations []*models.Integration
	for rows.Next() {
		integration, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan integration: %w", err)
		}
		integrations = append(integrations, integration)
	}
	return integrations, rows.Err()
}

func scanIntegration(row pgx.Row) (*models.Integration, error) {
	var integration models.Integration
	var provider string
	var configJSON []byte

	err := row.Scan(
		&integration.ID,
		&integration.UserID,
		&provider,
		&configJSON,
		&integration.IsActive,
		&integration.ConnectedAt,
		&integration.CreatedAt,
		&integration.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	integration.Provider = models.Provider(provider)
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &integration.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}
	return &integration, nil
}
