package core

import (
	"fmt"
	"strings"
	"time"
)

const DefaultEncryptionKeyID = "v1"

// ProviderTokens is the plaintext result of a token endpoint call. It only
// lives between the exchange and encryption.
type ProviderTokens struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scopes       []string
	ExpiresAt    *time.Time
}

func (t ProviderTokens) Validate() error {
	if strings.TrimSpace(t.AccessToken) == "" {
		return fmt.Errorf("core: provider tokens missing access token")
	}
	return nil
}

// OAuthTokenSet is the persisted connection record. Token fields hold
// encrypted credentials and are opaque outside the vault.
type OAuthTokenSet struct {
	ID                    string
	OrganizationID        string
	ProviderID            string
	AccessTokenEncrypted  string
	RefreshTokenEncrypted string
	TokenType             string
	Scopes                []string
	ExpiresAt             *time.Time
	EncryptionKeyID       string
	ConnectedBy           string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (s OAuthTokenSet) HasRefreshToken() bool {
	return strings.TrimSpace(s.RefreshTokenEncrypted) != ""
}

type ConnectRequest struct {
	OrganizationID string
	ProviderID     string
	RedirectURI    string
	Scopes         []string
	InitiatedBy    string
}

func (r ConnectRequest) Validate() error {
	if strings.TrimSpace(r.OrganizationID) == "" {
		return fmt.Errorf("core: organization id is required")
	}
	if strings.TrimSpace(r.ProviderID) == "" {
		return fmt.Errorf("core: provider id is required")
	}
	if strings.TrimSpace(r.RedirectURI) == "" {
		return fmt.Errorf("core: redirect uri is required")
	}
	return nil
}

type AuthorizationRedirect struct {
	URL       string
	State     string
	ExpiresAt time.Time
}

type CallbackRequest struct {
	OrganizationID string
	ProviderID     string
	Code           string
	State          string
	// Error carries the provider's error query parameter, if any.
	Error string
}

type RefreshRequest struct {
	OrganizationID string
	ProviderID     string
}

type DisconnectRequest struct {
	OrganizationID string
	ProviderID     string
}

type ConnectionStatusRequest struct {
	OrganizationID string
	ProviderID     string
}

type ConnectionStatus struct {
	OrganizationID  string
	ProviderID      string
	Connected       bool
	Expired         bool
	HasRefreshToken bool
	Scopes          []string
	ExpiresAt       *time.Time
	EncryptionKeyID string
	ConnectedBy     string
	UpdatedAt       time.Time
}

type RotateKeysRequest struct {
	BatchSize int
}

// RotateKeysResult counts a sweep. Skipped records were refreshed or
// disconnected while the sweep was rotating them.
type RotateKeysResult struct {
	TargetKeyID string
	Rotated     int
	Skipped     int
	Failed      int
	Failures    map[string]string
}

func normalizeScopes(scopes []string) []string {
	if len(scopes) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		for _, part := range strings.Fields(scope) {
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}

func cloneTimePointer(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	value := in.UTC()
	return &value
}

func cloneTokenSet(set OAuthTokenSet) OAuthTokenSet {
	cloned := set
	cloned.Scopes = append([]string(nil), set.Scopes...)
	cloned.ExpiresAt = cloneTimePointer(set.ExpiresAt)
	return cloned
}
