package neon

import (
	"context"

	"go.uber.org/zap"

	"github.com/tabledeck/tabledeck-engine/pkg/adapters/provider"
	"github.com/tabledeck/tabledeck-engine/pkg/models"
)

func init() {
	provider.Register(provider.Registration{
		Info: provider.Info{
			Provider:    models.ProviderNeon,
			DisplayName: "Neon",
			Description: "Serverless PostgreSQL over the native wire protocol",
		},
		Factory: func(ctx context.Context, config map[string]string, logger *zap.Logger) (provider.Adapter, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return New(ctx, cfg, logger)
		},
	})
}
