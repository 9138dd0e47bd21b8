package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-integrations/core"
	integrationmigrations "github.com/goliatone/go-integrations/migrations"
	"github.com/goliatone/go-integrations/providers"
	"github.com/goliatone/go-integrations/providers/devkit"
	"github.com/goliatone/go-integrations/security"
	sqlstore "github.com/goliatone/go-integrations/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

const testMasterKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"integration_oauth_sessions", "integration_token_sets"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master: %v", err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestSessionStore_SaveThenConsumeOnce(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewSessionStore(client.DB())
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}

	session := newTestSession(t, time.Now().UTC())
	session.OrganizationID = "org_1"
	session.InitiatedBy = "user_1"
	session.Scopes = []string{"channels:read", "chat:write"}
	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("save session: %v", err)
	}

	consumed, err := store.Consume(ctx, session.State)
	if err != nil {
		t.Fatalf("consume session: %v", err)
	}
	if consumed.CodeVerifier != session.CodeVerifier || consumed.CodeChallenge != session.CodeChallenge {
		t.Fatalf("expected pkce pair to round trip")
	}
	if consumed.OrganizationID != "org_1" || consumed.InitiatedBy != "user_1" {
		t.Fatalf("unexpected session owner %+v", consumed)
	}
	if consumed.ProviderID != "slack" || consumed.RedirectURI != session.RedirectURI {
		t.Fatalf("unexpected session target %+v", consumed)
	}
	if strings.Join(consumed.Scopes, " ") != "channels:read chat:write" {
		t.Fatalf("unexpected scopes %v", consumed.Scopes)
	}
	if diff := consumed.ExpiresAt.Sub(session.ExpiresAt); diff > time.Millisecond || diff < -time.Millisecond {
		t.Fatalf("expected expiry to round trip, drift %s", diff)
	}

	if _, err := store.Consume(ctx, session.State); !errors.Is(err, core.ErrSessionConsumed) {
		t.Fatalf("expected ErrSessionConsumed on second consume, got %v", err)
	}
}

func TestSessionStore_ConsumeUnknownState(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewSessionStore(client.DB())
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	if _, err := store.Consume(context.Background(), "missing"); !errors.Is(err, core.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := store.Consume(context.Background(), "  "); !errors.Is(err, core.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for blank state, got %v", err)
	}
}

func TestSessionStore_RejectsDuplicateState(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewSessionStore(client.DB())
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	session := newTestSession(t, time.Now().UTC())
	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("save session: %v", err)
	}
	if err := store.Save(ctx, session); err == nil {
		t.Fatalf("expected unique state violation")
	}
}

func TestSessionStore_ConcurrentConsumeHasSingleWinner(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewSessionStore(client.DB())
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	session := newTestSession(t, time.Now().UTC())
	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("save session: %v", err)
	}

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  int
		consumed int
		other    []error
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, consumeErr := store.Consume(ctx, session.State)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case consumeErr == nil:
				winners++
			case errors.Is(consumeErr, core.ErrSessionConsumed):
				consumed++
			default:
				other = append(other, consumeErr)
			}
		}()
	}
	wg.Wait()

	if len(other) > 0 {
		t.Fatalf("unexpected consume errors: %v", other)
	}
	if winners != 1 || consumed != workers-1 {
		t.Fatalf("expected one winner and %d consumed, got %d and %d", workers-1, winners, consumed)
	}
}

func TestSessionStore_SealsVerifierAtRest(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	vault := newTestVault(t)
	store, err := sqlstore.NewSessionStore(client.DB(), sqlstore.WithVerifierSealer(vault))
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	session := newTestSession(t, time.Now().UTC())
	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("save session: %v", err)
	}

	var stored string
	if err := client.DB().NewRaw(
		"SELECT code_verifier FROM integration_oauth_sessions WHERE state = ?",
		session.State,
	).Scan(ctx, &stored); err != nil {
		t.Fatalf("read stored verifier: %v", err)
	}
	if stored == session.CodeVerifier || !security.IsEnvelope(stored) {
		t.Fatalf("expected verifier to be sealed at rest")
	}

	consumed, err := store.Consume(ctx, session.State)
	if err != nil {
		t.Fatalf("consume session: %v", err)
	}
	if consumed.CodeVerifier != session.CodeVerifier {
		t.Fatalf("expected verifier to be opened on consume")
	}
}

func TestSessionStore_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, err := sqlstore.NewSessionStore(client.DB(), sqlstore.WithSessionClock(func() time.Time {
		return base.Add(time.Hour)
	}))
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}

	stale := newTestSession(t, base)
	fresh := newTestSession(t, base.Add(55*time.Minute))
	for _, session := range []core.PKCESession{stale, fresh} {
		if err := store.Save(ctx, session); err != nil {
			t.Fatalf("save session: %v", err)
		}
	}

	purged, err := store.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("purge expired: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged session, got %d", purged)
	}
	if _, err := store.Consume(ctx, stale.State); !errors.Is(err, core.ErrSessionNotFound) {
		t.Fatalf("expected stale session to be gone, got %v", err)
	}
	if _, err := store.Consume(ctx, fresh.State); err != nil {
		t.Fatalf("expected fresh session to survive purge: %v", err)
	}
}

func TestTokenSetStore_UpsertKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewTokenSetStore(client.DB())
	if err != nil {
		t.Fatalf("new token set store: %v", err)
	}

	expiresAt := time.Now().UTC().Add(time.Hour)
	first, err := store.Upsert(ctx, core.OAuthTokenSet{
		OrganizationID:        "org_1",
		ProviderID:            "Slack",
		AccessTokenEncrypted:  "v1:a:b:c:first",
		RefreshTokenEncrypted: "v1:a:b:c:refresh",
		TokenType:             "bearer",
		Scopes:                []string{"channels:read"},
		ExpiresAt:             &expiresAt,
		EncryptionKeyID:       "primary",
		ConnectedBy:           "user_1",
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if first.ID == "" {
		t.Fatalf("expected generated id")
	}
	if first.ProviderID != "slack" {
		t.Fatalf("expected normalized provider id, got %q", first.ProviderID)
	}
	if !first.HasRefreshToken() || first.ExpiresAt == nil {
		t.Fatalf("expected refresh token and expiry to persist: %+v", first)
	}

	second, err := store.Upsert(ctx, core.OAuthTokenSet{
		OrganizationID:       "org_1",
		ProviderID:           "slack",
		AccessTokenEncrypted: "v1:a:b:c:second",
		TokenType:            "bearer",
		Scopes:               []string{"channels:read", "chat:write"},
		EncryptionKeyID:      "next",
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected id to survive replacement, got %q and %q", first.ID, second.ID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("expected created_at to survive replacement")
	}
	if second.AccessTokenEncrypted != "v1:a:b:c:second" || second.EncryptionKeyID != "next" {
		t.Fatalf("expected replacement values, got %+v", second)
	}
	if second.HasRefreshToken() || second.ExpiresAt != nil {
		t.Fatalf("expected replacement to clear refresh token and expiry, got %+v", second)
	}
	if len(second.Scopes) != 2 {
		t.Fatalf("expected replaced scopes, got %v", second.Scopes)
	}

	var count int
	if err := client.DB().NewRaw("SELECT COUNT(*) FROM integration_token_sets").Scan(ctx, &count); err != nil {
		t.Fatalf("count token sets: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single row per connection, got %d", count)
	}
}

func TestTokenSetStore_GetAndDelete(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewTokenSetStore(client.DB())
	if err != nil {
		t.Fatalf("new token set store: %v", err)
	}

	if _, err := store.Get(ctx, "org_1", "slack"); !errors.Is(err, core.ErrTokenSetNotFound) {
		t.Fatalf("expected ErrTokenSetNotFound, got %v", err)
	}
	if _, err := store.Upsert(ctx, core.OAuthTokenSet{
		OrganizationID:       "org_1",
		ProviderID:           "slack",
		AccessTokenEncrypted: "v1:a:b:c:d",
		EncryptionKeyID:      "primary",
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := store.Get(ctx, "org_1", " SLACK ")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AccessTokenEncrypted != "v1:a:b:c:d" {
		t.Fatalf("unexpected token set %+v", got)
	}
	if _, err := store.Get(ctx, "org_2", "slack"); !errors.Is(err, core.ErrTokenSetNotFound) {
		t.Fatalf("expected other organization to be isolated, got %v", err)
	}

	if err := store.Delete(ctx, "org_1", "slack"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "org_1", "slack"); !errors.Is(err, core.ErrTokenSetNotFound) {
		t.Fatalf("expected ErrTokenSetNotFound on second delete, got %v", err)
	}
}

func TestTokenSetStore_SwapIsConditionalOnStoredToken(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewTokenSetStore(client.DB())
	if err != nil {
		t.Fatalf("new token set store: %v", err)
	}
	current, err := store.Upsert(ctx, core.OAuthTokenSet{
		OrganizationID:       "org_1",
		ProviderID:           "slack",
		AccessTokenEncrypted: "v1:a:b:c:first",
		Scopes:               []string{"channels:read"},
		EncryptionKeyID:      "primary",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	next := current
	next.AccessTokenEncrypted = "v1:a:b:c:rotated"
	next.Scopes = []string{"channels:read", "chat:write"}
	next.EncryptionKeyID = "next"
	swapped, err := store.Swap(ctx, current, next)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if swapped.ID != current.ID || swapped.EncryptionKeyID != "next" || len(swapped.Scopes) != 2 {
		t.Fatalf("expected swapped values on the same row, got %+v", swapped)
	}

	if _, err := store.Swap(ctx, current, next); !errors.Is(err, core.ErrTokenSetChanged) {
		t.Fatalf("expected stale swap to report a change, got %v", err)
	}
	if err := store.Delete(ctx, "org_1", "slack"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Swap(ctx, swapped, next); !errors.Is(err, core.ErrTokenSetNotFound) {
		t.Fatalf("expected swap of deleted row to report not found, got %v", err)
	}
	var count int
	if err := client.DB().NewRaw("SELECT COUNT(*) FROM integration_token_sets").Scan(ctx, &count); err != nil {
		t.Fatalf("count token sets: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected swap not to recreate the row, got %d rows", count)
	}
}

func TestTokenSetStore_UpsertValidatesInput(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewTokenSetStore(client.DB())
	if err != nil {
		t.Fatalf("new token set store: %v", err)
	}
	if _, err := store.Upsert(context.Background(), core.OAuthTokenSet{
		OrganizationID:       "org_1",
		ProviderID:           "slack",
		AccessTokenEncrypted: "v1:a:b:c:d",
	}); err == nil {
		t.Fatalf("expected missing key id to be rejected")
	}
}

func TestTokenSetStore_ListNotEncryptedWith(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewTokenSetStore(client.DB())
	if err != nil {
		t.Fatalf("new token set store: %v", err)
	}
	seed := []struct {
		org   string
		keyID string
	}{
		{org: "org_1", keyID: "old"},
		{org: "org_2", keyID: "current"},
		{org: "org_3", keyID: "old"},
		{org: "org_4", keyID: "older"},
	}
	for _, item := range seed {
		if _, err := store.Upsert(ctx, core.OAuthTokenSet{
			OrganizationID:       item.org,
			ProviderID:           "slack",
			AccessTokenEncrypted: "v1:a:b:c:" + item.org,
			EncryptionKeyID:      item.keyID,
		}); err != nil {
			t.Fatalf("upsert %s: %v", item.org, err)
		}
	}

	stale, err := store.ListNotEncryptedWith(ctx, "current", 0)
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(stale) != 3 {
		t.Fatalf("expected 3 stale token sets, got %d", len(stale))
	}
	for _, set := range stale {
		if set.EncryptionKeyID == "current" {
			t.Fatalf("expected current key to be excluded, got %+v", set)
		}
	}

	limited, err := store.ListNotEncryptedWith(ctx, "current", 2)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestRepositoryFactory_BuildsStoresFromPersistence(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	if factory.SessionStore() == nil || factory.TokenSetStore() == nil {
		t.Fatalf("expected session and token set stores from factory")
	}
	if factory.DB() != client.DB() {
		t.Fatalf("expected factory to reuse the persistence bun db")
	}
	if _, ok := factory.TokenSetStore().(*sqlstore.TokenSetStore); !ok {
		t.Fatalf("expected uncached token set store, got %T", factory.TokenSetStore())
	}

	if _, err := sqlstore.NewRepositoryFactory().BuildStores("not-a-client"); err == nil {
		t.Fatalf("expected unsupported client type to fail")
	}
	if _, err := sqlstore.NewRepositoryFactory().BuildStores(nil); err == nil {
		t.Fatalf("expected nil client to fail")
	}
}

func TestRepositoryFactory_WrapsTokenSetCache(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	cacheConfig := repositorycache.DefaultConfig()
	cacheConfig.TTL = time.Minute
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromDB(client.DB(), sqlstore.WithTokenSetCache(cacheService))
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	if _, ok := factory.TokenSetStore().(*sqlstore.CachedTokenSetStore); !ok {
		t.Fatalf("expected cached token set store, got %T", factory.TokenSetStore())
	}
}

func TestServiceWithSQLStores_ConnectCallbackRefreshDisconnect(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	endpoint := devkit.NewTokenEndpoint(
		devkit.JSONToken("xoxb-initial", "xoxe-refresh", 3600),
		devkit.JSONToken("xoxb-refreshed", "", 3600),
	)
	defer endpoint.Close()

	provider, err := providers.NewOAuth2Provider(providers.OAuth2Config{
		ID:            "slack",
		AuthURL:       "https://slack.example/oauth/v2/authorize",
		TokenURL:      endpoint.URL(),
		ClientID:      "client_123",
		ClientSecret:  "secret_456",
		DefaultScopes: []string{"channels:read"},
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	registry := core.NewProviderRegistry()
	if err := registry.Register(provider); err != nil {
		t.Fatalf("register provider: %v", err)
	}

	vault := newTestVault(t)
	factory := sqlstore.NewRepositoryFactory(
		sqlstore.WithSessionStoreOptions(sqlstore.WithVerifierSealer(vault)),
	)
	cfg := core.DefaultConfig()
	cfg.Encryption.Key = testMasterKeyHex
	svc, err := core.NewService(cfg,
		core.WithPersistenceClient(client),
		core.WithRepositoryFactory(factory),
		core.WithRegistry(registry),
		core.WithTokenVault(vault),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	redirect, err := svc.Connect(ctx, core.ConnectRequest{
		OrganizationID: "org_1",
		ProviderID:     "slack",
		RedirectURI:    "https://app.example/callback",
		InitiatedBy:    "user_1",
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if state := stateFromURL(t, redirect.URL); state != redirect.State {
		t.Fatalf("expected redirect url to carry state %q, got %q", redirect.State, state)
	}

	status, err := svc.CompleteCallback(ctx, core.CallbackRequest{
		ProviderID: "slack",
		Code:       "code_1",
		State:      redirect.State,
	})
	if err != nil {
		t.Fatalf("complete callback: %v", err)
	}
	if !status.Connected || !status.HasRefreshToken || status.ConnectedBy != "user_1" {
		t.Fatalf("unexpected status after callback %+v", status)
	}

	stored, err := factory.TokenSetStore().Get(ctx, "org_1", "slack")
	if err != nil {
		t.Fatalf("get stored token set: %v", err)
	}
	if strings.Contains(stored.AccessTokenEncrypted, "xoxb-initial") {
		t.Fatalf("expected access token to be encrypted at rest")
	}
	if stored.EncryptionKeyID != vault.KeyID() {
		t.Fatalf("expected key id %q, got %q", vault.KeyID(), stored.EncryptionKeyID)
	}

	if _, err := svc.CompleteCallback(ctx, core.CallbackRequest{
		ProviderID: "slack",
		Code:       "code_1",
		State:      redirect.State,
	}); !errors.Is(err, core.ErrSessionConsumed) || !core.IsKind(err, core.KindCsrfMismatch) {
		t.Fatalf("expected replayed callback to fail as a consumed session, got %v", err)
	}

	if _, err := svc.Refresh(ctx, core.RefreshRequest{OrganizationID: "org_1", ProviderID: "slack"}); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	accessToken, err := svc.AccessToken(ctx, core.ConnectionStatusRequest{OrganizationID: "org_1", ProviderID: "slack"})
	if err != nil {
		t.Fatalf("access token: %v", err)
	}
	if accessToken != "xoxb-refreshed" {
		t.Fatalf("expected refreshed access token, got %q", accessToken)
	}
	refreshed, err := factory.TokenSetStore().Get(ctx, "org_1", "slack")
	if err != nil {
		t.Fatalf("get refreshed token set: %v", err)
	}
	if refreshed.ID != stored.ID || !refreshed.HasRefreshToken() {
		t.Fatalf("expected refresh to keep the row and the prior refresh token, got %+v", refreshed)
	}

	if err := svc.Disconnect(ctx, core.DisconnectRequest{OrganizationID: "org_1", ProviderID: "slack"}); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	after, err := svc.ConnectionStatus(ctx, core.ConnectionStatusRequest{OrganizationID: "org_1", ProviderID: "slack"})
	if err != nil {
		t.Fatalf("connection status: %v", err)
	}
	if after.Connected {
		t.Fatalf("expected disconnected status")
	}

	requests := endpoint.Requests()
	if len(requests) != 2 {
		t.Fatalf("expected exchange and refresh requests, got %d", len(requests))
	}
	if requests[0].Form.Get("grant_type") != "authorization_code" || requests[1].Form.Get("grant_type") != "refresh_token" {
		t.Fatalf("unexpected grant types %q and %q", requests[0].Form.Get("grant_type"), requests[1].Form.Get("grant_type"))
	}
}

func newTestSession(t *testing.T, createdAt time.Time) core.PKCESession {
	t.Helper()
	session, err := core.NewPKCESession("slack", "https://app.example/callback", 10*time.Minute)
	if err != nil {
		t.Fatalf("new pkce session: %v", err)
	}
	session.CreatedAt = createdAt
	session.ExpiresAt = createdAt.Add(10 * time.Minute)
	return session
}

func newTestVault(t *testing.T) *security.Vault {
	t.Helper()
	key, err := security.ParseMasterKey("primary", testMasterKeyHex)
	if err != nil {
		t.Fatalf("parse master key: %v", err)
	}
	keyring, err := security.NewKeyring(key)
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	vault, err := security.NewVault(keyring)
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	return vault
}

func stateFromURL(t *testing.T, raw string) string {
	t.Helper()
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse redirect url: %v", err)
	}
	return parsed.Query().Get("state")
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:integrations-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := sqlstore.PersistenceConfig{
		Driver:         sqlstore.DriverSQLite,
		Server:         dsn,
		PingTimeout:    time.Second,
		OtelIdentifier: "go-integrations-tests",
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = integrationmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != integrationmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, integrationmigrations.WithValidationTargets(integrationmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
