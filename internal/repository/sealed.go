package repository

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/sheetlog/sheetlog/internal/models"
	"golang.org/x/crypto/chacha20poly1305"
)

// SealedCredentialRepository wraps another repository and encrypts token
// material before it reaches the persistence write. The merge-on-empty
// refresh token rule still holds: an empty refresh token is passed through
// unsealed, so the inner store keeps the previously sealed one.
type SealedCredentialRepository struct {
	inner CredentialRepository
	key   []byte
}

func NewSealedCredentialRepository(inner CredentialRepository, key []byte) (*SealedCredentialRepository, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("seal key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	// Construct once to surface a bad key at startup.
	if _, err := chacha20poly1305.NewX(key); err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	keyCopy := make([]byte, len(key))
	copy(keyCopy, key)
	return &SealedCredentialRepository{inner: inner, key: keyCopy}, nil
}

func (r *SealedCredentialRepository) Upsert(ctx context.Context, cred *models.Credential) error {
	sealed := *cred

	var err error
	if sealed.AccessToken, err = r.seal(cred.AccessToken, cred.Identity); err != nil {
		return err
	}
	if cred.RefreshToken != "" {
		if sealed.RefreshToken, err = r.seal(cred.RefreshToken, cred.Identity); err != nil {
			return err
		}
	}

	return r.inner.Upsert(ctx, &sealed)
}

func (r *SealedCredentialRepository) Get(ctx context.Context, identity string) (*models.Credential, error) {
	cred, err := r.inner.Get(ctx, identity)
	if err != nil || cred == nil {
		return cred, err
	}

	if cred.AccessToken, err = r.open(cred.AccessToken, identity); err != nil {
		return nil, err
	}
	if cred.RefreshToken != "" {
		if cred.RefreshToken, err = r.open(cred.RefreshToken, identity); err != nil {
			return nil, err
		}
	}

	return cred, nil
}

// seal encrypts with a random nonce and binds the ciphertext to the identity
// so a sealed token cannot be replayed onto another record.
func (r *SealedCredentialRepository) seal(plaintext, identity string) (string, error) {
	cipher, err := chacha20poly1305.NewX(r.key)
	if err != nil {
		return "", fmt.Errorf("failed to initialize cipher: %w", err)
	}

	nonce := make([]byte, cipher.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := cipher.Seal(nonce, nonce, []byte(plaintext), []byte(identity))
	return base64.StdEncoding.EncodeToString(out), nil
}

func (r *SealedCredentialRepository) open(sealed, identity string) (string, error) {
	cipher, err := chacha20poly1305.NewX(r.key)
	if err != nil {
		return "", fmt.Errorf("failed to initialize cipher: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed token: %w", err)
	}
	if len(raw) < cipher.NonceSize() {
		return "", fmt.Errorf("sealed token too short")
	}

	nonce, ciphertext := raw[:cipher.NonceSize()], raw[cipher.NonceSize():]
	plaintext, err := cipher.Open(nil, nonce, ciphertext, []byte(identity))
	if err != nil {
		return "", fmt.Errorf("failed to open sealed token: %w", err)
	}

	return string(plaintext), nil
}
