package integrations

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/goliatone/go-integrations/core"
)

func TestExtensionHooks_RegisterAndApplyProviderPacks(t *testing.T) {
	hooks := NewExtensionHooks()
	pack := ProviderPack{
		Name: "downstream-pack",
		Providers: []core.Provider{
			extensionProvider{id: "custom_provider"},
		},
	}
	if err := hooks.RegisterProviderPack(pack); err != nil {
		t.Fatalf("register provider pack: %v", err)
	}
	if err := hooks.RegisterProviderPack(pack); err == nil {
		t.Fatalf("expected duplicate provider pack registration error")
	}
	if err := hooks.RegisterProviderPack(ProviderPack{Name: "empty"}); err == nil {
		t.Fatalf("expected empty provider pack to be rejected")
	}

	registry := core.NewProviderRegistry()
	if err := hooks.ApplyProviderPacks(registry); err != nil {
		t.Fatalf("apply provider packs: %v", err)
	}
	if _, ok := registry.Get("custom_provider"); !ok {
		t.Fatalf("expected provider pack registration in registry")
	}
}

func TestExtensionHooks_ProviderPacksAreCopiedAndSorted(t *testing.T) {
	hooks := NewExtensionHooks()
	for _, name := range []string{"zeta", "alpha"} {
		if err := hooks.RegisterProviderPack(ProviderPack{
			Name:      name,
			Providers: []core.Provider{extensionProvider{id: name + "_provider"}},
		}); err != nil {
			t.Fatalf("register %s pack: %v", name, err)
		}
	}
	packs := hooks.ProviderPacks()
	if len(packs) != 2 || packs[0].Name != "alpha" || packs[1].Name != "zeta" {
		t.Fatalf("expected packs sorted by name, got %#v", packs)
	}
	packs[0].Providers[0] = nil
	if hooks.ProviderPacks()[0].Providers[0] == nil {
		t.Fatalf("expected provider packs to be returned as copies")
	}
}

func TestExtensionHooks_ProviderBuilders(t *testing.T) {
	hooks := NewExtensionHooks()
	builder := func(id string, _ ProviderConfig, _ OAuthConfig, _ *http.Client) (core.Provider, error) {
		return extensionProvider{id: id}, nil
	}
	if err := hooks.RegisterProviderBuilder(" HubSpot ", builder); err != nil {
		t.Fatalf("register provider builder: %v", err)
	}
	if err := hooks.RegisterProviderBuilder("hubspot", builder); err == nil {
		t.Fatalf("expected duplicate builder registration error")
	}
	if err := hooks.RegisterProviderBuilder("", builder); err == nil {
		t.Fatalf("expected builder id to be required")
	}
	if err := hooks.RegisterProviderBuilder("pipedrive", nil); err == nil {
		t.Fatalf("expected nil builder to be rejected")
	}
	if _, ok := hooks.ProviderBuilder("HUBSPOT"); !ok {
		t.Fatalf("expected builder lookup to ignore case")
	}

	var nilHooks *ExtensionHooks
	if _, ok := nilHooks.ProviderBuilder("hubspot"); ok {
		t.Fatalf("expected nil hooks to have no builders")
	}
}

func TestExtensionHooks_Bundles(t *testing.T) {
	hooks := NewExtensionHooks()
	if err := hooks.RegisterCommandQueryBundle("status_bundle", func(service CredentialService) (any, error) {
		return map[string]any{
			"status_fn":  service.ConnectionStatus,
			"refresh_fn": service.Refresh,
		}, nil
	}); err != nil {
		t.Fatalf("register bundle: %v", err)
	}
	if err := hooks.RegisterCommandQueryBundle("status_bundle", func(CredentialService) (any, error) { return nil, nil }); err == nil {
		t.Fatalf("expected duplicate bundle registration error")
	}
	if err := hooks.RegisterCommandQueryBundle("audit_bundle", func(CredentialService) (any, error) { return "audit", nil }); err != nil {
		t.Fatalf("register audit bundle: %v", err)
	}
	if names := hooks.BundleNames(); strings.Join(names, ",") != "audit_bundle,status_bundle" {
		t.Fatalf("expected sorted bundle names, got %v", names)
	}

	bundles, err := hooks.BuildCommandQueryBundles(&stubFacadeService{})
	if err != nil {
		t.Fatalf("build bundles: %v", err)
	}
	if len(bundles) != 2 {
		t.Fatalf("expected two bundles, got %d", len(bundles))
	}
	if bundles["audit_bundle"] != "audit" {
		t.Fatalf("expected audit bundle value, got %#v", bundles["audit_bundle"])
	}

	if _, err := hooks.BuildCommandQueryBundles(nil); err == nil {
		t.Fatalf("expected nil service to be rejected")
	}
}

func TestExtensionHooks_BundleErrorsAreWrapped(t *testing.T) {
	hooks := NewExtensionHooks()
	boom := errors.New("bundle failed")
	if err := hooks.RegisterCommandQueryBundle("broken", func(CredentialService) (any, error) { return nil, boom }); err != nil {
		t.Fatalf("register bundle: %v", err)
	}
	_, err := hooks.BuildCommandQueryBundles(&stubFacadeService{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped bundle error, got %v", err)
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Fatalf("expected bundle name in error, got %q", err.Error())
	}
}

type extensionProvider struct {
	id string
}

func (p extensionProvider) ID() string { return p.id }

func (extensionProvider) DefaultScopes() []string { return []string{"read"} }

func (p extensionProvider) AuthorizationURL(session core.PKCESession, _ []string) (string, error) {
	return "https://example.test/auth?state=" + session.State, nil
}

func (extensionProvider) ExchangeCode(context.Context, string, core.PKCESession) (core.ProviderTokens, error) {
	return core.ProviderTokens{}, nil
}

func (extensionProvider) Refresh(context.Context, string) (core.ProviderTokens, error) {
	return core.ProviderTokens{}, nil
}
