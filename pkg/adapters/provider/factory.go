package provider

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tabledeck/tabledeck-engine/pkg/apperrors"
	"github.com/tabledeck/tabledeck-engine/pkg/models"
)

// Factory materializes adapters for the service layer.
type Factory interface {
	NewAdapter(ctx context.Context, p models.Provider, config map[string]string) (Adapter, error)
}

type registryFactory struct {
	logger *zap.Logger
}

// NewFactory returns a Factory backed by the package registry.
func NewFactory(logger *zap.Logger) Factory {
	return &registryFactory{logger: logger.Named("adapter")}
}

func (f *registryFactory) NewAdapter(ctx context.Context, p models.Provider, config map[string]string) (Adapter, error) {
	reg, ok := Lookup(p)
	if !ok {
		return nil, fmt.Errorf("%w: no adapter registered for provider %q", apperrors.ErrInvalidRequest, p)
	}
	adapter, err := reg.Factory(ctx, config, f.logger.Named(string(p)))
	if err != nil {
		return nil, err
	}
	return adapter, nil
}
