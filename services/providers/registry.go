package providers

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Builder creates a provider from its configuration
type Builder func(cfg Config) (Provider, error)

// Registry holds the providers that could be built from configuration
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register registers a provider instance
func (r *Registry) Register(provider Provider) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}

	name := provider.Name()
	if name == "" {
		return errors.New("provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return ErrProviderAlreadyRegistered
	}
	r.providers[name] = provider
	return nil
}

// Get retrieves a provider by name
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[name]
	if !exists {
		return nil, ErrProviderNotFound
	}
	return provider, nil
}

// Names returns the registered provider names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs every configured provider with its builder. A provider
// whose API key is missing is skipped; any other builder error fails the build.
func Build(builders map[string]Builder, configs map[string]Config) (*Registry, error) {
	registry := NewRegistry()
	for name, cfg := range configs {
		builder, ok := builders[name]
		if !ok {
			return nil, fmt.Errorf("no builder for provider %s", name)
		}
		provider, err := builder(cfg)
		if errors.Is(err, ErrMissingAPIKey) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to build provider %s: %w", name, err)
		}
		if err := registry.Register(provider); err != nil {
			return nil, fmt.Errorf("failed to register provider %s: %w", name, err)
		}
	}
	return registry, nil
}
