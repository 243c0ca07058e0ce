package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/tabledeck/tabledeck-engine/pkg/adapters/provider"
	"github.com/tabledeck/tabledeck-engine/pkg/apperrors"
	"github.com/tabledeck/tabledeck-engine/pkg/audit"
	"github.com/tabledeck/tabledeck-engine/pkg/crypto"
	"github.com/tabledeck/tabledeck-engine/pkg/models"
	"github.com/tabledeck/tabledeck-engine/pkg/repositories"
)

// IntegrationStatus is the secret-free view of one provider's connection
// state for a user.
type IntegrationStatus struct {
	Provider    models.Provider `json:"provider"`
	DisplayName string          `json:"displayName"`
	Connected   bool            `json:"connected"`
	Active      bool            `json:"active"`
	ConnectedAt *time.Time      `json:"connectedAt,omitempty"`
	OAuth       bool            `json:"oauth"`
}

// IntegrationService manages the credential lifecycle. Credentials are
// verified against the live backend before anything is persisted, encrypted
// field by field at rest, and disconnects are soft so reconnecting restores
// the record.
type IntegrationService interface {
	// Connect verifies the credentials against the backend and, unless
	// testOnly is set, encrypts and upserts them. Returns nil on testOnly
	// success.
	Connect(ctx context.Context, userID string, p models.Provider, config map[string]string, testOnly bool) (*models.Integration, error)

	// CompleteOAuth stores tokens obtained from a token exchange through the
	// same upsert path as a manual connect. The exchange itself already
	// proved the tokens, so no connection test runs. Existing config fields
	// (e.g. a deployment URL) are preserved and merged.
	CompleteOAuth(ctx context.Context, userID string, p models.Provider, tokens map[string]string) (*models.Integration, error)

	// Disconnect soft-disables the integration, keeping the encrypted record.
	Disconnect(ctx context.Context, userID string, p models.Provider) error

	// List returns the connection status of every supported provider.
	List(ctx context.Context, userID string) ([]IntegrationStatus, error)
}

type integrationService struct {
	repo    repositories.IntegrationRepository
	cipher  *crypto.CredentialCipher
	factory provider.Factory
	trail   *audit.Trail
	timeout time.Duration
	logger  *zap.Logger
}

// NewIntegrationService wires the service. timeout bounds the connection
// test against the remote backend.
func NewIntegrationService(
	repo repositories.IntegrationRepository,
	cipher *crypto.CredentialCipher,
	factory provider.Factory,
	trail *audit.Trail,
	timeout time.Duration,
	logger *zap.Logger,
) IntegrationService {
	return &integrationService{
		repo:    repo,
		cipher:  cipher,
		factory: factory,
		trail:   trail,
		timeout: timeout,
		logger:  logger.Named("integrations"),
	}
}

func (s *integrationService) Connect(ctx context.Context, userID string, p models.Provider, config map[string]string, testOnly bool) (*models.Integration, error) {
	if userID == "" {
		return nil, apperrors.ErrUnauthenticated
	}

	if err := s.testConnection(ctx, p, config); err != nil {
		s.recordConnect(userID, p, err)
		return nil, err
	}
	if testOnly {
		s.recordConnect(userID, p, nil)
		return nil, nil
	}

	encrypted, err := s.encryptConfig(config)
	if err != nil {
		s.recordConnect(userID, p, err)
		return nil, err
	}
	integration, err := s.repo.Upsert(ctx, userID, p, encrypted)
	if err != nil {
		err = fmt.Errorf("persist integration: %w", err)
		s.recordConnect(userID, p, err)
		return nil, err
	}

	s.recordConnect(userID, p, nil)
	s.logger.Info("integration connected",
		zap.String("user_id", userID),
		zap.String("provider", string(p)))
	return integration, nil
}

func (s *integrationService) CompleteOAuth(ctx context.Context, userID string, p models.Provider, tokens map[string]string) (*models.Integration, error) {
	if userID == "" {
		return nil, apperrors.ErrUnauthenticated
	}
	if !p.SupportsOAuth() {
		return nil, fmt.Errorf("%w: provider %q does not support oauth", apperrors.ErrInvalidRequest, p)
	}

	merged := make(map[string]string)
	if existing, err := s.repo.FindByUserAndProvider(ctx, userID, p); err != nil {
		return nil, fmt.Errorf("look up integration: %w", err)
	} else if existing != nil {
		for k, v := range existing.Config {
			merged[k] = v
		}
	}
	for k, v := range tokens {
		if v == "" {
			continue
		}
		encrypted, err := s.cipher.Encrypt(v)
		if err != nil {
			return nil, fmt.Errorf("encrypt credential field: %w", err)
		}
		merged[k] = encrypted
	}

	integration, err := s.repo.Upsert(ctx, userID, p, merged)
	if err != nil {
		return nil, fmt.Errorf("persist integration: %w", err)
	}
	s.recordConnect(userID, p, nil)
	return integration, nil
}

func (s *integrationService) Disconnect(ctx context.Context, userID string, p models.Provider) error {
	if userID == "" {
		return apperrors.ErrUnauthenticated
	}
	if err := s.repo.Deactivate(ctx, userID, p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrIntegrationNotFound
		}
		return fmt.Errorf("deactivate integration: %w", err)
	}
	s.trail.Record(&models.AuditLogEntry{
		UserID:   userID,
		Provider: p,
		Action:   models.AuditActionDisconnect,
		Status:   models.AuditStatusSuccess,
	})
	return nil
}

func (s *integrationService) List(ctx context.Context, userID string) ([]IntegrationStatus, error) {
	if userID == "" {
		return nil, apperrors.ErrUnauthenticated
	}
	records, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	byProvider := make(map[models.Provider]*models.Integration, len(records))
	for _, rec := range records {
		byProvider[rec.Provider] = rec
	}

	registered := make(map[models.Provider]provider.Info)
	for _, info := range provider.Registered() {
		registered[info.Provider] = info
	}

	statuses := make([]IntegrationStatus, 0, len(models.Providers()))
	for _, p := range models.Providers() {
		status := IntegrationStatus{
			Provider:    p,
			DisplayName: string(p),
			OAuth:       p.SupportsOAuth(),
		}
		if info, ok := registered[p]; ok {
			status.DisplayName = info.DisplayName
		}
		if rec, ok := byProvider[p]; ok {
			status.Connected = true
			status.Active = rec.IsActive
			connectedAt := rec.ConnectedAt
			status.ConnectedAt = &connectedAt
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// testConnection materializes a throwaway adapter from the plaintext config
// and probes the backend within the configured timeout.
func (s *integrationService) testConnection(ctx context.Context, p models.Provider, config map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	adapter, err := s.factory.NewAdapter(ctx, p, config)
	if err != nil {
		return err
	}
	defer adapter.Close()
	return adapter.TestConnection(ctx)
}

func (s *integrationService) encryptConfig(config map[string]string) (map[string]string, error) {
	encrypted := make(map[string]string, len(config))
	for key, value := range config {
		ct, err := s.cipher.Encrypt(value)
		if err != nil {
			return nil, fmt.Errorf("encrypt credential field: %w", err)
		}
		encrypted[key] = ct
	}
	return encrypted, nil
}

func (s *integrationService) recordConnect(userID string, p models.Provider, opErr error) {
	entry := &models.AuditLogEntry{
		UserID:   userID,
		Provider: p,
		Action:   models.AuditActionConnect,
		Status:   models.AuditStatusSuccess,
	}
	if opErr != nil {
		entry.Status = models.AuditStatusError
		entry.ErrorMessage = opErr.Error()
	}
	s.trail.Record(entry)
}
