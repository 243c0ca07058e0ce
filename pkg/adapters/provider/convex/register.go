package convex

import (
	"context"

	"go.uber.org/zap"

	"github.com/tabledeck/tabledeck-engine/pkg/adapters/provider"
	"github.com/tabledeck/tabledeck-engine/pkg/models"
)

func init() {
	provider.Register(provider.Registration{
		Info: provider.Info{
			Provider:    models.ProviderConvex,
			DisplayName: "Convex",
			Description: "Schemaless document store with OAuth-issued access",
		},
		Factory: func(ctx context.Context, config map[string]string, logger *zap.Logger) (provider.Adapter, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return New(cfg, logger), nil
		},
	})
}
