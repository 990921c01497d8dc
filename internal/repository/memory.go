package repository

import (
	"context"
	"sync"

	"github.com/sheetlog/sheetlog/internal/models"
)

// MemoryCredentialRepository holds credentials in process memory. It backs
// tests and local development where neither DynamoDB nor Redis is running.
type MemoryCredentialRepository struct {
	mu    sync.RWMutex
	creds map[string]models.Credential
}

func NewMemoryCredentialRepository() *MemoryCredentialRepository {
	return &MemoryCredentialRepository{
		creds: make(map[string]models.Credential),
	}
}

func (r *MemoryCredentialRepository) Upsert(ctx context.Context, cred *models.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	merged := *cred
	if prev, ok := r.creds[cred.Identity]; ok {
		merged.MergeRefreshToken(&prev)
	}
	r.creds[cred.Identity] = merged
	return nil
}

func (r *MemoryCredentialRepository) Get(ctx context.Context, identity string) (*models.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cred, ok := r.creds[identity]
	if !ok {
		return nil, nil // No credential stored
	}
	out := cred
	return &out, nil
}
