package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-integrations/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TokenSetStore keeps one encrypted token set per (organization, provider).
type TokenSetStore struct {
	db   *bun.DB
	repo repository.Repository[*tokenSetRecord]
	now  func() time.Time
}

func NewTokenSetStore(db *bun.DB) (*TokenSetStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*tokenSetRecord](db, tokenSetHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid token set repository wiring: %w", err)
		}
	}
	return &TokenSetStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// Upsert inserts or replaces the token set for its connection key. The row
// id and created_at survive replacement.
func (s *TokenSetStore) Upsert(ctx context.Context, set core.OAuthTokenSet) (core.OAuthTokenSet, error) {
	if s == nil || s.db == nil {
		return core.OAuthTokenSet{}, fmt.Errorf("sqlstore: token set store is not configured")
	}
	if err := validateTokenSet(set); err != nil {
		return core.OAuthTokenSet{}, err
	}
	record := newTokenSetRecord(set, s.now())
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (organization_id, provider_id) DO UPDATE").
		Set("access_token_encrypted = EXCLUDED.access_token_encrypted").
		Set("refresh_token_encrypted = EXCLUDED.refresh_token_encrypted").
		Set("token_type = EXCLUDED.token_type").
		Set("scopes = EXCLUDED.scopes").
		Set("expires_at = EXCLUDED.expires_at").
		Set("encryption_key_id = EXCLUDED.encryption_key_id").
		Set("connected_by = EXCLUDED.connected_by").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return core.OAuthTokenSet{}, fmt.Errorf("sqlstore: upsert token set: %w", err)
	}
	return s.Get(ctx, record.OrganizationID, record.ProviderID)
}

// Swap rewrites the row only while it still holds current's sealed access
// token. Zero affected rows means the row was deleted or rewritten.
func (s *TokenSetStore) Swap(ctx context.Context, current, next core.OAuthTokenSet) (core.OAuthTokenSet, error) {
	if s == nil || s.db == nil {
		return core.OAuthTokenSet{}, fmt.Errorf("sqlstore: token set store is not configured")
	}
	if err := validateTokenSet(next); err != nil {
		return core.OAuthTokenSet{}, err
	}
	organizationID := strings.TrimSpace(current.OrganizationID)
	providerID := normalizeProviderID(current.ProviderID)
	if strings.TrimSpace(next.OrganizationID) != organizationID || normalizeProviderID(next.ProviderID) != providerID {
		return core.OAuthTokenSet{}, fmt.Errorf("sqlstore: swap cannot move a token set to another connection")
	}
	record := newTokenSetRecord(next, s.now())

	result, err := s.db.NewUpdate().
		Model(record).
		Column(
			"access_token_encrypted",
			"refresh_token_encrypted",
			"token_type",
			"scopes",
			"expires_at",
			"encryption_key_id",
			"connected_by",
			"updated_at",
		).
		Where("organization_id = ?", organizationID).
		Where("provider_id = ?", providerID).
		Where("access_token_encrypted = ?", current.AccessTokenEncrypted).
		Exec(ctx)
	if err != nil {
		return core.OAuthTokenSet{}, fmt.Errorf("sqlstore: swap token set: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return core.OAuthTokenSet{}, err
	}
	if affected == 0 {
		if _, getErr := s.Get(ctx, organizationID, providerID); getErr != nil {
			return core.OAuthTokenSet{}, getErr
		}
		return core.OAuthTokenSet{}, core.ErrTokenSetChanged
	}
	return s.Get(ctx, organizationID, providerID)
}

func (s *TokenSetStore) Get(ctx context.Context, organizationID, providerID string) (core.OAuthTokenSet, error) {
	if s == nil || s.repo == nil {
		return core.OAuthTokenSet{}, fmt.Errorf("sqlstore: token set store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("organization_id", "=", strings.TrimSpace(organizationID)),
		repository.SelectBy("provider_id", "=", normalizeProviderID(providerID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.OAuthTokenSet{}, err
	}
	if len(records) == 0 {
		return core.OAuthTokenSet{}, core.ErrTokenSetNotFound
	}
	return records[0].toDomain(), nil
}

func (s *TokenSetStore) Delete(ctx context.Context, organizationID, providerID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: token set store is not configured")
	}
	result, err := s.db.NewDelete().
		Model((*tokenSetRecord)(nil)).
		Where("organization_id = ?", strings.TrimSpace(organizationID)).
		Where("provider_id = ?", normalizeProviderID(providerID)).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.ErrTokenSetNotFound
	}
	return nil
}

// ListNotEncryptedWith returns token sets stored under any key other than
// keyID, oldest first.
func (s *TokenSetStore) ListNotEncryptedWith(ctx context.Context, keyID string, limit int) ([]core.OAuthTokenSet, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: token set store is not configured")
	}
	keyID = strings.TrimSpace(keyID)
	criteria := []repository.SelectCriteria{
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.encryption_key_id <> ?", keyID)
		}),
		repository.OrderBy("created_at ASC"),
		repository.OrderBy("id ASC"),
	}
	if limit > 0 {
		criteria = append(criteria, repository.SelectPaginate(limit, 0))
	}
	records, _, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}
	out := make([]core.OAuthTokenSet, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func validateTokenSet(set core.OAuthTokenSet) error {
	if strings.TrimSpace(set.OrganizationID) == "" {
		return fmt.Errorf("sqlstore: token set organization id is required")
	}
	if strings.TrimSpace(set.ProviderID) == "" {
		return fmt.Errorf("sqlstore: token set provider id is required")
	}
	if strings.TrimSpace(set.AccessTokenEncrypted) == "" {
		return fmt.Errorf("sqlstore: token set access token is required")
	}
	if strings.TrimSpace(set.EncryptionKeyID) == "" {
		return fmt.Errorf("sqlstore: token set encryption key id is required")
	}
	return nil
}
