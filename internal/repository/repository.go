package repository

import (
	"context"

	"github.com/sheetlog/sheetlog/internal/models"
)

// CredentialRepository is keyed storage for credential records.
//
// Upsert writes the record for cred.Identity, creating it if absent. When
// the incoming record has an empty refresh token and a record already
// exists, the stored refresh token is preserved. Concurrent upserts for the
// same identity are last-writer-wins; the write itself is atomic, so a
// partially-written record is never observable.
//
// Get returns (nil, nil) when no record exists for the identity.
type CredentialRepository interface {
	Upsert(ctx context.Context, cred *models.Credential) error
	Get(ctx context.Context, identity string) (*models.Credential, error)
}
