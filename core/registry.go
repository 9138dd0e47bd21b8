package core

import (
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// ProviderRegistry indexes OAuth providers by their lowercased id.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]Provider)}
}

// Register adds provider under its normalized id. Ids are unique.
func (r *ProviderRegistry) Register(provider Provider) error {
	if provider == nil {
		return registrationError("core: provider is nil", goerrors.CategoryBadInput, "")
	}
	id := normalizeProviderID(provider.ID())
	if id == "" {
		return registrationError("core: provider id is required", goerrors.CategoryBadInput, "")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.providers[id]; taken {
		return registrationError("core: provider already registered", goerrors.CategoryConflict, id)
	}
	r.providers[id] = provider
	return nil
}

func (r *ProviderRegistry) Get(providerID string) (Provider, bool) {
	id := normalizeProviderID(providerID)
	if id == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.providers[id]
	return provider, ok
}

// IDs returns the registered provider ids in ascending order.
func (r *ProviderRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.providers))
}

// List returns providers ordered by id.
func (r *ProviderRegistry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	providers := make([]Provider, 0, len(r.providers))
	for _, id := range slices.Sorted(maps.Keys(r.providers)) {
		providers = append(providers, r.providers[id])
	}
	return providers
}

func registrationError(message string, category goerrors.Category, providerID string) error {
	status := http.StatusBadRequest
	if category == goerrors.CategoryConflict {
		status = http.StatusConflict
	}
	err := goerrors.New(message, category).
		WithCode(status).
		WithTextCode(ServiceErrorBadInput)
	if providerID != "" {
		err = err.WithMetadata(map[string]any{"provider_id": providerID})
	}
	return err
}

func normalizeProviderID(providerID string) string {
	return strings.ToLower(strings.TrimSpace(providerID))
}

var _ Registry = (*ProviderRegistry)(nil)
