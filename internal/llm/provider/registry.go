package provider

import (
	"fmt"
	"sync"
)

// Config carries the settings a provider factory needs.
type Config struct {
	APIKey   string
	BaseURL  string
	Project  string
	Location string
}

// Factory constructs a provider from configuration.
type Factory func(cfg Config) (Provider, error)

// Registry manages provider factories and instances
type Registry struct {
	factories map[string]Factory
	providers map[string]Provider
	mu        sync.RWMutex
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		providers: make(map[string]Provider),
	}
}

// RegisterFactory registers a named provider factory
func (r *Registry) RegisterFactory(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Register registers a ready-made provider instance
func (r *Registry) Register(name string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = provider
}

// New builds a provider by factory name
func (r *Registry) New(name string, cfg Config) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider '%s' not registered", name)
	}
	return factory(cfg)
}

// Get retrieves a registered provider instance by name
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider '%s' not found", name)
	}
	return provider, nil
}

// List returns all registered factory names
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// Global registry
var globalRegistry = NewRegistry()

// RegisterFactory registers a factory globally
func RegisterFactory(name string, factory Factory) {
	globalRegistry.RegisterFactory(name, factory)
}

// New builds a provider from the global registry
func New(name string, cfg Config) (Provider, error) {
	return globalRegistry.New(name, cfg)
}

// List returns all factory names from the global registry
func List() []string {
	return globalRegistry.List()
}
