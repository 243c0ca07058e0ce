// Package services holds the business logic between the HTTP handlers and
// the provider adapters: admission control, credential lifecycle and the
// data operations themselves.
package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tabledeck/tabledeck-engine/pkg/apperrors"
	"github.com/tabledeck/tabledeck-engine/pkg/metrics"
	"github.com/tabledeck/tabledeck-engine/pkg/models"
	"github.com/tabledeck/tabledeck-engine/pkg/ratelimit"
	"github.com/tabledeck/tabledeck-engine/pkg/repositories"
)

// AccessGuard admits an operation in a fixed order: identity, then rate
// limit, then integration lookup. A rate-limited request is counted and
// rejected before the integration is even looked up, so probing for other
// users' integrations burns quota too.
type AccessGuard struct {
	integrations repositories.IntegrationRepository
	limiter      ratelimit.Limiter
	logger       *zap.Logger
}

// NewAccessGuard wires the guard.
func NewAccessGuard(integrations repositories.IntegrationRepository, limiter ratelimit.Limiter, logger *zap.Logger) *AccessGuard {
	return &AccessGuard{
		integrations: integrations,
		limiter:      limiter,
		logger:       logger.Named("guard"),
	}
}

// Admit returns the active integration for (userID, provider) or the
// taxonomy error describing why the operation may not proceed. Limiter
// backend failures fail open with a warning: a broken Redis must not take
// the dashboard down.
func (g *AccessGuard) Admit(ctx context.Context, userID string, p models.Provider) (*models.Integration, error) {
	if userID == "" {
		return nil, apperrors.ErrUnauthenticated
	}

	allowed, err := g.limiter.Allow(ctx, ratelimit.Key(userID, string(p)))
	if err != nil {
		g.logger.Warn("rate limiter unavailable, failing open", zap.Error(err))
		allowed = true
	}
	if !allowed {
		metrics.ObserveRateLimited(string(p))
		return nil, apperrors.ErrRateLimited
	}

	integration, err := g.integrations.FindByUserAndProvider(ctx, userID, p)
	if err != nil {
		return nil, fmt.Errorf("look up integration: %w", err)
	}
	if integration == nil {
		return nil, apperrors.ErrIntegrationNotFound
	}
	if !integration.IsActive {
		return nil, apperrors.ErrIntegrationInactive
	}
	return integration, nil
}
