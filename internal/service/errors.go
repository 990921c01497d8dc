package service

import "errors"

// ErrNoCredential is the not-found state: nothing stored for the identity,
// or the stored credential expired and could not be refreshed. The caller
// must send the user through the full authorization flow again.
var ErrNoCredential = errors.New("no valid credential stored")

// ErrEmptyIdentity rejects operations on a blank identity. This is a caller
// bug, not an infrastructure fault.
var ErrEmptyIdentity = errors.New("identity must not be empty")

// ErrEmptyAuthorizationCode rejects an exchange attempt with no code, which
// usually means the redirect was hit directly or the user denied consent.
var ErrEmptyAuthorizationCode = errors.New("authorization code must not be empty")

// ExchangeError means the provider rejected the authorization code. Codes
// are one-shot, so this is terminal for the request: do not retry the code.
type ExchangeError struct {
	Err error
}

func (e *ExchangeError) Error() string {
	return "authorization code exchange failed: " + e.Err.Error()
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// IdentityLookupError means the provider rejected the access token or its
// response did not name an account.
type IdentityLookupError struct {
	Err error
}

func (e *IdentityLookupError) Error() string {
	return "identity lookup failed: " + e.Err.Error()
}

func (e *IdentityLookupError) Unwrap() error { return e.Err }

// PersistenceError means the credential store is unavailable. Callers can
// retry or surface a degraded-success response; the credential itself may
// still be valid ("auth succeeded but storage failed").
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return "credential store failed: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// RefreshError means the refresh token was rejected, usually because the
// user revoked access. Recovery requires re-consent, never a local retry.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return "token refresh failed: " + e.Err.Error()
}

func (e *RefreshError) Unwrap() error { return e.Err }
