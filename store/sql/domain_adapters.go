package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/google/uuid"
)

func newSessionRecord(session core.PKCESession, verifier string) *sessionRecord {
	createdAt := session.CreatedAt.UTC()
	if session.CreatedAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	method := strings.TrimSpace(session.ChallengeMethod)
	if method == "" {
		method = core.PKCEMethodS256
	}
	return &sessionRecord{
		ID:              uuid.NewString(),
		State:           strings.TrimSpace(session.State),
		ProviderID:      normalizeProviderID(session.ProviderID),
		OrganizationID:  strings.TrimSpace(session.OrganizationID),
		InitiatedBy:     strings.TrimSpace(session.InitiatedBy),
		RedirectURI:     strings.TrimSpace(session.RedirectURI),
		CodeVerifier:    verifier,
		CodeChallenge:   session.CodeChallenge,
		ChallengeMethod: method,
		Scopes:          cloneStrings(session.Scopes),
		ExpiresAt:       session.ExpiresAt.UTC(),
		CreatedAt:       createdAt,
	}
}

func (r *sessionRecord) toDomain(verifier string) core.PKCESession {
	if r == nil {
		return core.PKCESession{}
	}
	return core.PKCESession{
		CodeVerifier:    verifier,
		CodeChallenge:   r.CodeChallenge,
		ChallengeMethod: r.ChallengeMethod,
		State:           r.State,
		ProviderID:      r.ProviderID,
		RedirectURI:     r.RedirectURI,
		OrganizationID:  r.OrganizationID,
		InitiatedBy:     r.InitiatedBy,
		Scopes:          cloneStrings(r.Scopes),
		CreatedAt:       r.CreatedAt.UTC(),
		ExpiresAt:       r.ExpiresAt.UTC(),
	}
}

func newTokenSetRecord(set core.OAuthTokenSet, now time.Time) *tokenSetRecord {
	return &tokenSetRecord{
		ID:                    strings.TrimSpace(set.ID),
		OrganizationID:        strings.TrimSpace(set.OrganizationID),
		ProviderID:            normalizeProviderID(set.ProviderID),
		AccessTokenEncrypted:  set.AccessTokenEncrypted,
		RefreshTokenEncrypted: set.RefreshTokenEncrypted,
		TokenType:             strings.TrimSpace(set.TokenType),
		Scopes:                cloneStrings(set.Scopes),
		ExpiresAt:             cloneTimePointer(set.ExpiresAt),
		EncryptionKeyID:       strings.TrimSpace(set.EncryptionKeyID),
		ConnectedBy:           strings.TrimSpace(set.ConnectedBy),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

func (r *tokenSetRecord) toDomain() core.OAuthTokenSet {
	if r == nil {
		return core.OAuthTokenSet{}
	}
	return core.OAuthTokenSet{
		ID:                    r.ID,
		OrganizationID:        r.OrganizationID,
		ProviderID:            r.ProviderID,
		AccessTokenEncrypted:  r.AccessTokenEncrypted,
		RefreshTokenEncrypted: r.RefreshTokenEncrypted,
		TokenType:             r.TokenType,
		Scopes:                cloneStrings(r.Scopes),
		ExpiresAt:             cloneTimePointer(r.ExpiresAt),
		EncryptionKeyID:       r.EncryptionKeyID,
		ConnectedBy:           r.ConnectedBy,
		CreatedAt:             r.CreatedAt.UTC(),
		UpdatedAt:             r.UpdatedAt.UTC(),
	}
}

func normalizeProviderID(providerID string) string {
	return strings.ToLower(strings.TrimSpace(providerID))
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	return append([]string(nil), in...)
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
