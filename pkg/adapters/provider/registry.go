package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/tabledeck/tabledeck-engine/pkg/models"
)

// FactoryFunc builds a transient adapter from a decrypted config map.
type FactoryFunc func(ctx context.Context, config map[string]string, logger *zap.Logger) (Adapter, error)

// Info is the registry-facing description of a backend.
type Info struct {
	Provider    models.Provider `json:"provider"`
	DisplayName string          `json:"displayName"`
	Description string          `json:"description"`
}

// Registration couples a backend description with its factory.
type Registration struct {
	Info    Info
	Factory FactoryFunc
}

var (
	registryMu sync.RWMutex
	registry   = make(map[models.Provider]Registration)
)

// Register installs a backend factory. Called from adapter package init
// functions; registering the same provider twice panics because it is a
// wiring bug, not a runtime condition.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[reg.Info.Provider]; dup {
		panic(fmt.Sprintf("provider: duplicate registration for %q", reg.Info.Provider))
	}
	registry[reg.Info.Provider] = reg
}

// Lookup returns the registration for a provider.
func Lookup(p models.Provider) (Registration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[p]
	return reg, ok
}

// Registered returns descriptions of all installed backends, sorted by
// provider name for stable output.
func Registered() []Info {
	registryMu.RLock()
	defer registryMu.RUnlock()
	infos := make([]Info, 0, len(registry))
	for _, reg := range registry {
		infos = append(infos, reg.Info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Provider < infos[j].Provider })
	return infos
}
