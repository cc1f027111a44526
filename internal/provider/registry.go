package provider

import (
	"context"
	"sync"

	gerrors "github.com/floodgatehq/floodgate/internal/errors"
)

// Factory materialises a per-request provider from the credentials and
// settings bundle the auth handler granted.
type Factory func(ctx context.Context, credentials, settings map[string]any) (Provider, error)

// Registry maps provider kind names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs a factory under a kind name, replacing any previous one.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Names returns the registered provider kinds.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// New constructs a provider for one request. Unknown kinds fail with
// InvalidArgument.
func (r *Registry) New(ctx context.Context, name string, credentials, settings map[string]any) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, gerrors.Newf(gerrors.KindInvalidArgument, "unknown provider %q", name)
	}
	return factory(ctx, credentials, settings)
}
