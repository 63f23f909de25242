package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/lakeforge/lakeforge/pkg/provider"
	"github.com/lakeforge/lakeforge/providers/aws"
	"github.com/lakeforge/lakeforge/providers/local"
	"github.com/lakeforge/lakeforge/providers/snowflake"
)

// Registry manages the lifecycle of provider adapters.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]provider.Provider
	settings  map[string]map[string]any
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]provider.Provider),
		settings:  make(map[string]map[string]any),
	}
}

// Configure records provider-level settings from the configuration's
// provider blocks. Settings are handed to the adapter when it is loaded.
func (r *Registry) Configure(name string, settings map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[name] = settings
}

// Load initializes and registers a built-in provider by name.
// Loading an already-loaded provider is a no-op.
func (r *Registry) Load(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return nil
	}

	var p provider.Provider
	switch name {
	case "local":
		p = local.New()
	case "aws":
		p = aws.New()
	case "snowflake":
		p = snowflake.New()
	default:
		return fmt.Errorf("unknown provider: %s", name)
	}

	if err := p.Configure(ctx, r.settings[name]); err != nil {
		return fmt.Errorf("failed to configure provider %s: %w", name, err)
	}

	r.providers[name] = p
	return nil
}

// Register installs a pre-built provider under a name, replacing any
// built-in. Used by tests to inject fakes.
func (r *Registry) Register(name string, p provider.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get returns a loaded provider.
func (r *Registry) Get(name string) (provider.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not loaded: %s", name)
	}
	return p, nil
}
