package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type sessionRecord struct {
	bun.BaseModel `bun:"table:integration_oauth_sessions,alias:ios"`

	ID              string     `bun:"id,pk"`
	State           string     `bun:"state,notnull"`
	ProviderID      string     `bun:"provider_id,notnull"`
	OrganizationID  string     `bun:"organization_id,notnull"`
	InitiatedBy     string     `bun:"initiated_by,notnull"`
	RedirectURI     string     `bun:"redirect_uri,notnull"`
	CodeVerifier    string     `bun:"code_verifier,notnull"`
	CodeChallenge   string     `bun:"code_challenge,notnull"`
	ChallengeMethod string     `bun:"challenge_method,notnull"`
	Scopes          []string   `bun:"scopes,type:jsonb,notnull"`
	ExpiresAt       time.Time  `bun:"expires_at,notnull"`
	ConsumedAt      *time.Time `bun:"consumed_at,nullzero"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type tokenSetRecord struct {
	bun.BaseModel `bun:"table:integration_token_sets,alias:its"`

	ID                    string     `bun:"id,pk"`
	OrganizationID        string     `bun:"organization_id,notnull"`
	ProviderID            string     `bun:"provider_id,notnull"`
	AccessTokenEncrypted  string     `bun:"access_token_encrypted,notnull"`
	RefreshTokenEncrypted string     `bun:"refresh_token_encrypted,notnull"`
	TokenType             string     `bun:"token_type,notnull"`
	Scopes                []string   `bun:"scopes,type:jsonb,notnull"`
	ExpiresAt             *time.Time `bun:"expires_at,nullzero"`
	EncryptionKeyID       string     `bun:"encryption_key_id,notnull"`
	ConnectedBy           string     `bun:"connected_by,notnull"`
	CreatedAt             time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt             time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
