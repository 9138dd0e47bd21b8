package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CompleteCallback consumes the session bound to req.State, verifies it,
// exchanges the code and persists the encrypted token set. The session is
// consumed whether or not the callback succeeds.
func (s *Service) CompleteCallback(ctx context.Context, req CallbackRequest) (status ConnectionStatus, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id":     req.ProviderID,
		"organization_id": req.OrganizationID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "complete_callback", err, fields)
	}()

	if req.State == "" {
		err = NewCsrfMismatchError(fmt.Errorf("core: callback state is missing"))
		return ConnectionStatus{}, err
	}
	session, err := s.sessionStore.Consume(ctx, req.State)
	if err != nil {
		err = s.mapError(err)
		return ConnectionStatus{}, err
	}
	if strings.TrimSpace(req.OrganizationID) == "" {
		req.OrganizationID = session.OrganizationID
		fields["organization_id"] = session.OrganizationID
	}

	set, err := s.ExchangeCallback(ctx, req, session)
	if err != nil {
		return ConnectionStatus{}, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = s.mapError(ctxErr)
		return ConnectionStatus{}, err
	}

	stored, err := s.tokenSetStore.Upsert(ctx, set)
	if err != nil {
		err = s.mapError(err)
		return ConnectionStatus{}, err
	}
	return s.statusFromTokenSet(stored), nil
}

// ExchangeCallback verifies a callback against an already consumed session
// and returns the encrypted token set without persisting it. Callers that
// hold sessions outside a SessionStore use it directly.
func (s *Service) ExchangeCallback(ctx context.Context, req CallbackRequest, session PKCESession) (OAuthTokenSet, error) {
	if err := s.verifyCallback(req, session); err != nil {
		return OAuthTokenSet{}, err
	}
	provider, err := s.resolveProvider(session.ProviderID)
	if err != nil {
		return OAuthTokenSet{}, err
	}

	if strings.TrimSpace(req.Error) != "" {
		return OAuthTokenSet{}, NewExchangeFailedError(
			provider.ID(),
			&ProviderResponseError{ErrorCode: strings.TrimSpace(req.Error)},
		)
	}
	if strings.TrimSpace(req.Code) == "" {
		return OAuthTokenSet{}, s.mapError(fmt.Errorf("core: authorization code is required"))
	}

	tokens, err := provider.ExchangeCode(ctx, req.Code, session)
	if err != nil {
		return OAuthTokenSet{}, s.providerCallError(ctx, provider.ID(), err)
	}
	if err := tokens.Validate(); err != nil {
		return OAuthTokenSet{}, NewExchangeFailedError(provider.ID(), err)
	}

	set := OAuthTokenSet{
		OrganizationID:  session.OrganizationID,
		ProviderID:      provider.ID(),
		TokenType:       tokens.TokenType,
		Scopes:          normalizeScopes(tokens.Scopes),
		ExpiresAt:       cloneTimePointer(tokens.ExpiresAt),
		EncryptionKeyID: s.tokenVault.KeyID(),
		ConnectedBy:     session.InitiatedBy,
	}
	if len(set.Scopes) == 0 {
		set.Scopes = append([]string{}, session.Scopes...)
	}
	if set.AccessTokenEncrypted, err = s.encryptToken(tokens.AccessToken); err != nil {
		return OAuthTokenSet{}, err
	}
	if tokens.RefreshToken != "" {
		if set.RefreshTokenEncrypted, err = s.encryptToken(tokens.RefreshToken); err != nil {
			return OAuthTokenSet{}, err
		}
	}
	return set, nil
}

// verifyCallback runs the checks that reject a callback before any network
// call: CSRF state, session expiry, then the stored PKCE pair.
func (s *Service) verifyCallback(req CallbackRequest, session PKCESession) error {
	if !ValidateState(req.State, session.State) {
		return NewCsrfMismatchError(fmt.Errorf("core: callback state mismatch"))
	}
	if req.ProviderID != "" && normalizeProviderID(req.ProviderID) != normalizeProviderID(session.ProviderID) {
		return NewCsrfMismatchError(fmt.Errorf("core: callback provider mismatch"))
	}
	if req.OrganizationID != "" && session.OrganizationID != "" &&
		strings.TrimSpace(req.OrganizationID) != strings.TrimSpace(session.OrganizationID) {
		return NewCsrfMismatchError(fmt.Errorf("core: callback organization mismatch"))
	}
	if !session.IsValid(s.now()) {
		return NewSessionExpiredError()
	}
	ok, err := VerifyPKCE(session.CodeVerifier, session.CodeChallenge)
	if err != nil {
		return NewPkceMismatchError(err)
	}
	if !ok {
		return NewPkceMismatchError(fmt.Errorf("core: pkce verifier does not match challenge"))
	}
	return nil
}

// Refresh exchanges the stored refresh token for new tokens. When the
// provider omits a refresh token the previous one is kept.
func (s *Service) Refresh(ctx context.Context, req RefreshRequest) (status ConnectionStatus, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id":     req.ProviderID,
		"organization_id": req.OrganizationID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "refresh", err, fields)
	}()

	if err = validateConnectionKey(req.OrganizationID, req.ProviderID); err != nil {
		err = s.mapError(err)
		return ConnectionStatus{}, err
	}
	provider, err := s.resolveProvider(req.ProviderID)
	if err != nil {
		return ConnectionStatus{}, err
	}

	lock, err := s.credentialLocker.Acquire(ctx, tokenSetKey(req.OrganizationID, provider.ID()), defaultRefreshLockTTL)
	if err != nil {
		err = s.mapError(err)
		return ConnectionStatus{}, err
	}
	defer func() {
		_ = lock.Unlock(ctx)
	}()

	current, err := s.tokenSetStore.Get(ctx, req.OrganizationID, provider.ID())
	if err != nil {
		err = s.mapError(err)
		return ConnectionStatus{}, err
	}
	if !current.HasRefreshToken() {
		err = NewExchangeFailedError(provider.ID(), fmt.Errorf("core: no refresh token stored, reconnect required"))
		return ConnectionStatus{}, err
	}

	refreshToken, err := s.decryptToken(ctx, current.RefreshTokenEncrypted, fields)
	if err != nil {
		return ConnectionStatus{}, err
	}
	tokens, err := provider.Refresh(ctx, refreshToken)
	if err != nil {
		err = s.providerCallError(ctx, provider.ID(), err)
		return ConnectionStatus{}, err
	}
	if err = tokens.Validate(); err != nil {
		err = NewExchangeFailedError(provider.ID(), err)
		return ConnectionStatus{}, err
	}

	next := cloneTokenSet(current)
	next.TokenType = firstNonEmpty(tokens.TokenType, current.TokenType)
	next.ExpiresAt = cloneTimePointer(tokens.ExpiresAt)
	if scopes := normalizeScopes(tokens.Scopes); len(scopes) > 0 {
		next.Scopes = scopes
	}
	if next.AccessTokenEncrypted, err = s.encryptToken(tokens.AccessToken); err != nil {
		return ConnectionStatus{}, err
	}
	switch {
	case tokens.RefreshToken != "" && tokens.RefreshToken != refreshToken:
		if next.RefreshTokenEncrypted, err = s.encryptToken(tokens.RefreshToken); err != nil {
			return ConnectionStatus{}, err
		}
	case current.EncryptionKeyID != s.tokenVault.KeyID():
		// the access token moves to the active key, so the kept refresh token must too
		if next.RefreshTokenEncrypted, err = s.encryptToken(refreshToken); err != nil {
			return ConnectionStatus{}, err
		}
	}
	next.EncryptionKeyID = s.tokenVault.KeyID()

	if ctxErr := ctx.Err(); ctxErr != nil {
		err = s.mapError(ctxErr)
		return ConnectionStatus{}, err
	}
	// a disconnect that slipped in must not be undone by this write
	stored, err := s.tokenSetStore.Swap(ctx, current, next)
	if err != nil {
		err = s.mapError(err)
		return ConnectionStatus{}, err
	}
	return s.statusFromTokenSet(stored), nil
}

// AccessToken returns the decrypted access token for an outbound API call.
func (s *Service) AccessToken(ctx context.Context, req ConnectionStatusRequest) (string, error) {
	if err := validateConnectionKey(req.OrganizationID, req.ProviderID); err != nil {
		return "", s.mapError(err)
	}
	set, err := s.tokenSetStore.Get(ctx, req.OrganizationID, req.ProviderID)
	if err != nil {
		return "", s.mapError(err)
	}
	return s.decryptToken(ctx, set.AccessTokenEncrypted, map[string]any{
		"provider_id":     set.ProviderID,
		"organization_id": set.OrganizationID,
	})
}

func (s *Service) encryptToken(plaintext string) (string, error) {
	encoded, err := s.tokenVault.Encrypt(plaintext)
	if err != nil {
		if _, ok := KindOf(err); ok {
			return "", err
		}
		return "", s.mapError(err)
	}
	return encoded, nil
}

// decryptToken collapses every vault failure into the generic
// DecryptionFailed error. The cause goes to the log only.
func (s *Service) decryptToken(ctx context.Context, encoded string, fields map[string]any) (string, error) {
	plaintext, err := s.tokenVault.Decrypt(encoded)
	if err == nil {
		return plaintext, nil
	}
	logFields := cloneFields(fields)
	logFields["cause"] = err.Error()
	s.logError(ctx, "token decryption failed", logFields)
	return "", NewDecryptionFailedError()
}

// providerCallError keeps typed provider failures, surfaces caller
// cancellation as is and wraps anything else as ExchangeFailed.
func (s *Service) providerCallError(ctx context.Context, providerID string, err error) error {
	if _, ok := KindOf(err); ok {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return s.mapError(ctxErr)
	}
	return NewExchangeFailedError(providerID, err)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
