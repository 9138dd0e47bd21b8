package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const defaultRotateBatchSize = 100

// RotateKeys re-encrypts every stored token set whose key id differs from
// the rotator's target. A record that fails to rotate is reported in the
// result and skipped; the sweep continues with the rest.
func (s *Service) RotateKeys(ctx context.Context, rotator KeyRotator, req RotateKeysRequest) (result RotateKeysResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		fields["rotated"] = result.Rotated
		fields["skipped"] = result.Skipped
		fields["failed"] = result.Failed
		s.observeOperation(ctx, startedAt, "rotate_keys", err, fields)
	}()

	if rotator == nil {
		err = NewInvalidConfigurationError("core: key rotator is required")
		return RotateKeysResult{}, err
	}
	targetKeyID := strings.TrimSpace(rotator.TargetKeyID())
	if targetKeyID == "" {
		err = NewInvalidConfigurationError("core: rotation target key id is required")
		return RotateKeysResult{}, err
	}
	fields["target_key_id"] = targetKeyID

	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = defaultRotateBatchSize
	}
	result = RotateKeysResult{
		TargetKeyID: targetKeyID,
		Failures:    map[string]string{},
	}

	// records that failed or were skipped stay stale; visited widens the
	// list limit so they cannot starve the rest of the sweep
	visited := map[string]struct{}{}
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = s.mapError(ctxErr)
			return result, err
		}
		pending, listErr := s.tokenSetStore.ListNotEncryptedWith(ctx, targetKeyID, batchSize+len(visited))
		if listErr != nil {
			err = s.mapError(listErr)
			return result, err
		}

		attempted := 0
		for _, set := range pending {
			key := tokenSetKey(set.OrganizationID, set.ProviderID)
			if _, seen := visited[key]; seen {
				continue
			}
			attempted++
			rotated, rotateErr := s.rotateTokenSet(ctx, rotator, set)
			switch {
			case rotateErr != nil:
				visited[key] = struct{}{}
				result.Failed++
				result.Failures[key] = rotateErr.Error()
			case !rotated:
				visited[key] = struct{}{}
				result.Skipped++
			default:
				result.Rotated++
			}
		}
		if attempted == 0 {
			return result, nil
		}
	}
}

// rotateTokenSet seals set under the target key outside the credential lock,
// then writes it only if the row still holds what was read. A record
// disconnected or refreshed in between is left alone and reported false.
func (s *Service) rotateTokenSet(ctx context.Context, rotator KeyRotator, set OAuthTokenSet) (bool, error) {
	next := cloneTokenSet(set)
	accessToken, err := rotator.Rotate(set.AccessTokenEncrypted)
	if err != nil {
		return false, fmt.Errorf("core: rotate access token: %w", err)
	}
	next.AccessTokenEncrypted = accessToken
	if set.HasRefreshToken() {
		refreshToken, err := rotator.Rotate(set.RefreshTokenEncrypted)
		if err != nil {
			return false, fmt.Errorf("core: rotate refresh token: %w", err)
		}
		next.RefreshTokenEncrypted = refreshToken
	}
	next.EncryptionKeyID = rotator.TargetKeyID()

	lock, err := awaitCredentialLock(ctx, s.credentialLocker, tokenSetKey(set.OrganizationID, set.ProviderID))
	if err != nil {
		return false, fmt.Errorf("core: lock token set: %w", err)
	}
	defer func() {
		_ = lock.Unlock(ctx)
	}()

	_, err = s.tokenSetStore.Swap(ctx, set, next)
	switch {
	case errors.Is(err, ErrTokenSetNotFound), errors.Is(err, ErrTokenSetChanged):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("core: store rotated token set: %w", err)
	}
	return true, nil
}
