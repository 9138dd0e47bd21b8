package integrations

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-integrations/adapters/gocommand"
	"github.com/goliatone/go-integrations/core"
)

// CredentialService is the service surface commands, queries and bundles are
// built against. core.Service satisfies it.
type CredentialService = gocommand.CredentialService

type ProviderPack struct {
	Name      string
	Providers []core.Provider
}

type CommandQueryBundleFactory func(service CredentialService) (any, error)

// ExtensionHooks lets downstream code add providers and command bundles
// without forking the runtime setup.
type ExtensionHooks struct {
	mu sync.RWMutex

	providerPacks    map[string]ProviderPack
	providerBuilders map[string]ProviderBuilder
	bundles          map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		providerPacks:    map[string]ProviderPack{},
		providerBuilders: map[string]ProviderBuilder{},
		bundles:          map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterProviderPack(pack ProviderPack) error {
	if h == nil {
		return fmt.Errorf("integrations: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("integrations: provider pack name is required")
	}
	if len(pack.Providers) == 0 {
		return fmt.Errorf("integrations: provider pack %q has no providers", name)
	}

	normalized := ProviderPack{
		Name:      name,
		Providers: append([]core.Provider(nil), pack.Providers...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.providerPacks[name]; exists {
		return fmt.Errorf("integrations: provider pack %q already registered", name)
	}
	h.providerPacks[name] = normalized
	return nil
}

// RegisterProviderBuilder handles providers.<id> config entries for an id
// that has no preset, or replaces a preset.
func (h *ExtensionHooks) RegisterProviderBuilder(providerID string, builder ProviderBuilder) error {
	if h == nil {
		return fmt.Errorf("integrations: extension hooks are nil")
	}
	providerID = strings.TrimSpace(strings.ToLower(providerID))
	if providerID == "" {
		return fmt.Errorf("integrations: provider builder id is required")
	}
	if builder == nil {
		return fmt.Errorf("integrations: provider builder %q is nil", providerID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.providerBuilders[providerID]; exists {
		return fmt.Errorf("integrations: provider builder %q already registered", providerID)
	}
	h.providerBuilders[providerID] = builder
	return nil
}

func (h *ExtensionHooks) ProviderBuilder(providerID string) (ProviderBuilder, bool) {
	if h == nil {
		return nil, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	builder, ok := h.providerBuilders[strings.TrimSpace(strings.ToLower(providerID))]
	return builder, ok
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("integrations: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("integrations: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("integrations: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("integrations: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

func (h *ExtensionHooks) ApplyProviderPacks(registry core.Registry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("integrations: registry is required")
	}

	for _, pack := range h.ProviderPacks() {
		for _, provider := range pack.Providers {
			if provider == nil {
				return fmt.Errorf("integrations: provider pack %q contains nil provider", pack.Name)
			}
			if err := registry.Register(provider); err != nil {
				return fmt.Errorf("integrations: provider pack %q: %w", pack.Name, err)
			}
		}
	}
	return nil
}

// BuildCommandQueryBundles runs every bundle factory in name order.
func (h *ExtensionHooks) BuildCommandQueryBundles(service CredentialService) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("integrations: credential service is required")
	}

	h.mu.RLock()
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(factories))
	for _, name := range sortedKeys(factories) {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, fmt.Errorf("integrations: build bundle %q: %w", name, err)
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) ProviderPacks() []ProviderPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]ProviderPack, 0, len(h.providerPacks))
	for _, name := range sortedKeys(h.providerPacks) {
		pack := h.providerPacks[name]
		out = append(out, ProviderPack{
			Name:      pack.Name,
			Providers: append([]core.Provider(nil), pack.Providers...),
		})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return sortedKeys(h.bundles)
}

func sortedKeys[V any](in map[string]V) []string {
	keys := make([]string, 0, len(in))
	for key := range in {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
