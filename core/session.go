package core

import (
	"fmt"
	"strings"
	"time"
)

const DefaultSessionTTL = 10 * time.Minute

// PKCESession is the short-lived record bridging an authorization redirect
// and its callback. It is consumed exactly once.
type PKCESession struct {
	CodeVerifier    string
	CodeChallenge   string
	ChallengeMethod string
	State           string
	ProviderID      string
	RedirectURI     string
	OrganizationID  string
	InitiatedBy     string
	Scopes          []string
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

func NewPKCESession(providerID, redirectURI string, ttl time.Duration) (PKCESession, error) {
	return newPKCESessionAt(providerID, redirectURI, ttl, time.Now().UTC())
}

func newPKCESessionAt(providerID, redirectURI string, ttl time.Duration, now time.Time) (PKCESession, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return PKCESession{}, fmt.Errorf("core: provider id is required")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	challenge, err := GeneratePKCE()
	if err != nil {
		return PKCESession{}, err
	}
	state, err := GenerateState()
	if err != nil {
		return PKCESession{}, err
	}
	return PKCESession{
		CodeVerifier:    challenge.CodeVerifier,
		CodeChallenge:   challenge.CodeChallenge,
		ChallengeMethod: challenge.Method,
		State:           state,
		ProviderID:      providerID,
		RedirectURI:     strings.TrimSpace(redirectURI),
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
	}, nil
}

// IsValid reports now < ExpiresAt.
func (s PKCESession) IsValid(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return now.Before(s.ExpiresAt)
}

func (s PKCESession) Valid() bool {
	return s.IsValid(time.Now().UTC())
}

func (s PKCESession) Validate() error {
	if strings.TrimSpace(s.State) == "" {
		return fmt.Errorf("core: oauth session state is required")
	}
	if strings.TrimSpace(s.ProviderID) == "" {
		return fmt.Errorf("core: oauth session provider id is required")
	}
	if strings.TrimSpace(s.CodeVerifier) == "" || strings.TrimSpace(s.CodeChallenge) == "" {
		return fmt.Errorf("core: oauth session pkce pair is required")
	}
	if !s.ExpiresAt.After(s.CreatedAt) {
		return fmt.Errorf("core: oauth session expiry must be after creation")
	}
	return nil
}

func clonePKCESession(session PKCESession) PKCESession {
	cloned := session
	cloned.Scopes = append([]string(nil), session.Scopes...)
	return cloned
}
