package providers

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry manages all registered providers
type Registry struct {
	adapters map[string]Adapter
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewRegistry creates a new provider registry
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		adapters: make(map[string]Adapter),
		logger:   logger,
	}
}

// Register adds a provider to the registry
func (r *Registry) Register(adapter Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := adapter.Name()
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}

	r.adapters[name] = adapter
	r.logger.Info("registered provider",
		slog.String("provider", name),
		slog.String("display_name", adapter.DisplayName()),
		slog.String("auth_mode", string(adapter.AuthMode())),
	)

	return nil
}

// Get returns a provider by name
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("provider %s not registered", name)
	}
	return adapter, nil
}

// List returns all registered providers sorted by name
func (r *Registry) List() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)

	adapters := make([]Adapter, 0, len(names))
	for _, name := range names {
		adapters = append(adapters, r.adapters[name])
	}
	return adapters
}
