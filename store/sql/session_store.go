package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-integrations/core"
	"github.com/uptrace/bun"
)

// SessionStore keeps PKCE sessions in integration_oauth_sessions. Consume
// marks the row with a conditional UPDATE so two callbacks racing on the
// same state cannot both win.
type SessionStore struct {
	db     *bun.DB
	repo   repository.Repository[*sessionRecord]
	sealer core.TokenVault
	now    func() time.Time
}

type SessionStoreOption func(*SessionStore)

// WithVerifierSealer encrypts code verifiers at rest with the given vault.
func WithVerifierSealer(sealer core.TokenVault) SessionStoreOption {
	return func(s *SessionStore) {
		s.sealer = sealer
	}
}

func WithSessionClock(now func() time.Time) SessionStoreOption {
	return func(s *SessionStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSessionStore(db *bun.DB, opts ...SessionStoreOption) (*SessionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*sessionRecord](db, sessionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid session repository wiring: %w", err)
		}
	}
	store := &SessionStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *SessionStore) Save(ctx context.Context, session core.PKCESession) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: session store is not configured")
	}
	if err := session.Validate(); err != nil {
		return err
	}
	verifier, err := s.seal(session.CodeVerifier)
	if err != nil {
		return err
	}
	if _, err := s.repo.Create(ctx, newSessionRecord(session, verifier)); err != nil {
		return fmt.Errorf("sqlstore: save oauth session: %w", err)
	}
	return nil
}

func (s *SessionStore) Consume(ctx context.Context, state string) (core.PKCESession, error) {
	if s == nil || s.db == nil {
		return core.PKCESession{}, fmt.Errorf("sqlstore: session store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return core.PKCESession{}, core.ErrSessionNotFound
	}

	record := new(sessionRecord)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.state = ?", state).
			Limit(1).
			Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return core.ErrSessionNotFound
			}
			return err
		}
		if record.ConsumedAt != nil {
			return core.ErrSessionConsumed
		}

		result, err := tx.NewUpdate().
			Model((*sessionRecord)(nil)).
			Set("consumed_at = ?", s.now()).
			Where("id = ?", record.ID).
			Where("consumed_at IS NULL").
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return core.ErrSessionConsumed
		}
		return nil
	})
	if err != nil {
		return core.PKCESession{}, err
	}

	verifier, err := s.open(record.CodeVerifier)
	if err != nil {
		return core.PKCESession{}, err
	}
	return record.toDomain(verifier), nil
}

// PurgeExpired deletes sessions past their expiry, consumed or not.
func (s *SessionStore) PurgeExpired(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: session store is not configured")
	}
	result, err := s.db.NewDelete().
		Model((*sessionRecord)(nil)).
		Where("expires_at < ?", s.now()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *SessionStore) seal(verifier string) (string, error) {
	if s.sealer == nil {
		return verifier, nil
	}
	sealed, err := s.sealer.Encrypt(verifier)
	if err != nil {
		return "", fmt.Errorf("sqlstore: seal code verifier: %w", err)
	}
	return sealed, nil
}

func (s *SessionStore) open(stored string) (string, error) {
	if s.sealer == nil {
		return stored, nil
	}
	verifier, err := s.sealer.Decrypt(stored)
	if err != nil {
		return "", fmt.Errorf("sqlstore: open code verifier: %w", err)
	}
	return verifier, nil
}
