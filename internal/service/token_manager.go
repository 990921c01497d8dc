package service

import (
	"context"
	"time"

	"github.com/sheetlog/sheetlog/internal/models"
	"github.com/sheetlog/sheetlog/internal/repository"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshBuffer is how long before its stated expiry an access token
// is already treated as expired, so a token judged valid here does not run
// out mid-request downstream.
const DefaultRefreshBuffer = 60 * time.Second

// IdentityProvider is the slice of the OAuth2 provider the token manager
// needs. Refresh may return a credential without a refresh token when the
// provider did not reissue one.
type IdentityProvider interface {
	Exchange(ctx context.Context, code string) (*models.Credential, error)
	Refresh(ctx context.Context, refreshToken string) (*models.Credential, error)
	Identity(ctx context.Context, cred *models.Credential) (string, error)
}

// TokenManager owns the credential lifecycle per user identity: exchange an
// authorization code, persist the result, and hand out credentials that are
// refreshed transparently before they expire.
type TokenManager struct {
	provider IdentityProvider
	repo     repository.CredentialRepository
	buffer   time.Duration
	group    singleflight.Group
	logger   *logrus.Logger
}

func NewTokenManager(provider IdentityProvider, repo repository.CredentialRepository, buffer time.Duration, logger *logrus.Logger) *TokenManager {
	if buffer <= 0 {
		buffer = DefaultRefreshBuffer
	}
	return &TokenManager{
		provider: provider,
		repo:     repo,
		buffer:   buffer,
		logger:   logger,
	}
}

// Exchange trades an authorization code for a credential. Codes are one-shot
// and time-limited at the provider; a rejection is terminal for this request.
func (m *TokenManager) Exchange(ctx context.Context, code string) (*models.Credential, error) {
	if code == "" {
		return nil, &ExchangeError{Err: ErrEmptyAuthorizationCode}
	}

	cred, err := m.provider.Exchange(ctx, code)
	if err != nil {
		return nil, &ExchangeError{Err: err}
	}

	return cred, nil
}

// ResolveIdentity names the account a fresh credential belongs to. The
// credential alone does not identify its owner, so a storage key has to come
// from the provider.
func (m *TokenManager) ResolveIdentity(ctx context.Context, cred *models.Credential) (string, error) {
	identity, err := m.provider.Identity(ctx, cred)
	if err != nil {
		return "", &IdentityLookupError{Err: err}
	}

	return identity, nil
}

// Store upserts the credential record for identity. An existing record is
// updated in place, and its refresh token survives when the incoming
// credential carries none. Storage faults come back as *PersistenceError so
// callers can tell "bad input" from "store unavailable" and degrade instead
// of losing the credential silently.
func (m *TokenManager) Store(ctx context.Context, identity string, cred *models.Credential) error {
	if identity == "" {
		return ErrEmptyIdentity
	}

	record := *cred
	record.Identity = identity
	record.LastUsed = time.Now()

	if err := m.repo.Upsert(ctx, &record); err != nil {
		m.logger.WithError(err).WithField("identity", identity).Error("Failed to store credential")
		return &PersistenceError{Err: err}
	}

	return nil
}

// GetValidCredential returns a non-expired credential for identity,
// refreshing it first when needed. ErrNoCredential means the caller must
// send the user through the authorization flow again: nothing is stored, or
// the stored credential expired without a usable refresh token.
func (m *TokenManager) GetValidCredential(ctx context.Context, identity string) (*models.Credential, error) {
	if identity == "" {
		return nil, ErrEmptyIdentity
	}

	cred, err := m.repo.Get(ctx, identity)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	if cred == nil {
		return nil, ErrNoCredential
	}

	if cred.ValidAt(time.Now(), m.buffer) {
		m.touch(ctx, identity, cred)
		return cred, nil
	}

	if cred.RefreshToken == "" {
		m.logger.WithField("identity", identity).Info("Credential expired without refresh token")
		return nil, ErrNoCredential
	}

	// Concurrent calls for the same identity ride a single refresh round
	// trip. Correctness does not depend on this: the upsert is last-writer-
	// wins and the provider tolerates overlapping refreshes.
	fresh, err, _ := m.group.Do(identity, func() (interface{}, error) {
		return m.refresh(ctx, identity, cred)
	})
	if err != nil {
		m.logger.WithError(err).WithField("identity", identity).Warn("Refresh failed, re-authorization required")
		return nil, ErrNoCredential
	}

	return fresh.(*models.Credential), nil
}

func (m *TokenManager) refresh(ctx context.Context, identity string, stale *models.Credential) (*models.Credential, error) {
	fresh, err := m.provider.Refresh(ctx, stale.RefreshToken)
	if err != nil {
		return nil, &RefreshError{Err: err}
	}

	fresh.Identity = identity
	fresh.MergeRefreshToken(stale)
	fresh.LastUsed = time.Now()

	// The refreshed token is valid regardless of whether the write lands;
	// worst case the next call refreshes again.
	if err := m.repo.Upsert(ctx, fresh); err != nil {
		m.logger.WithError(err).WithField("identity", identity).Error("Failed to store refreshed credential")
	}

	return fresh, nil
}

// touch updates the last-used stamp. Best effort: a failed write must not
// turn a perfectly valid credential into an error.
func (m *TokenManager) touch(ctx context.Context, identity string, cred *models.Credential) {
	record := *cred
	record.LastUsed = time.Now()
	if err := m.repo.Upsert(ctx, &record); err != nil {
		m.logger.WithError(err).WithField("identity", identity).Warn("Failed to update last-used stamp")
	}
	cred.LastUsed = record.LastUsed
}
