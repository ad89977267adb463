package storage

import (
	"fmt"
	"sync"

	"github.com/sgl-project/cloudxfer/pkg/logging"
)

// ConnectorBuilder constructs a connector for one backend. Builders are
// expected to be cheap; authentication happens lazily on first use.
type ConnectorBuilder func(logger logging.Interface) (Connector, error)

// Factory creates connectors keyed by provider. Backend packages are
// registered externally to avoid import cycles.
type Factory struct {
	mu       sync.RWMutex
	builders map[Provider]ConnectorBuilder
	logger   logging.Interface
}

// NewFactory creates an empty connector factory.
func NewFactory(logger logging.Interface) *Factory {
	return &Factory{
		builders: make(map[Provider]ConnectorBuilder),
		logger:   logger,
	}
}

// Register registers a connector builder for a provider, replacing any
// previous registration.
func (f *Factory) Register(provider Provider, builder ConnectorBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[provider] = builder
}

// Create builds a new connector for the given provider.
func (f *Factory) Create(provider Provider) (Connector, error) {
	f.mu.RLock()
	builder, ok := f.builders[provider]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unsupported storage provider: %s", provider)
	}

	f.logger.WithField("provider", provider).Debug("Creating storage connector")
	return builder(f.logger)
}

// Registered returns the providers that have a builder, in the canonical
// order.
func (f *Factory) Registered() []Provider {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []Provider
	for _, p := range Providers() {
		if _, ok := f.builders[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
