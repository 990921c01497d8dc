package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "client-secret")
	t.Setenv("GOOGLE_REDIRECT_URL", "http://localhost:8080/auth/google/callback")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "dynamodb", cfg.Store.Backend)
	assert.Equal(t, "SheetlogCredentials", cfg.DynamoDB.TableName)
	assert.Equal(t, 60*time.Second, cfg.Token.RefreshBuffer)
	assert.Contains(t, cfg.Google.Scopes, "https://www.googleapis.com/auth/spreadsheets")
	assert.Empty(t, cfg.Store.SealKey)
}

func TestLoad_MissingClientCredentials(t *testing.T) {
	t.Setenv("GOOGLE_CLIENT_ID", "")
	t.Setenv("GOOGLE_CLIENT_SECRET", "")
	t.Setenv("GOOGLE_REDIRECT_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_MissingRedirectURL(t *testing.T) {
	t.Setenv("GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "client-secret")
	t.Setenv("GOOGLE_REDIRECT_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ScopesFromEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GOOGLE_SCOPES", "openid, email ,https://example.com/scope")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"openid", "email", "https://example.com/scope"}, cfg.Google.Scopes)
}

func TestLoad_StoreBackend(t *testing.T) {
	setRequiredEnv(t)

	t.Setenv("STORE_BACKEND", "redis")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Store.Backend)

	t.Setenv("STORE_BACKEND", "postgres")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoad_SealKey(t *testing.T) {
	setRequiredEnv(t)

	t.Setenv("CREDENTIAL_SEAL_KEY", "4242424242424242424242424242424242424242424242424242424242424242")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Len(t, cfg.Store.SealKey, 32)
}

func TestLoad_SealKeyInvalid(t *testing.T) {
	setRequiredEnv(t)

	t.Setenv("CREDENTIAL_SEAL_KEY", "not-hex")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("CREDENTIAL_SEAL_KEY", "4242")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoad_RefreshBuffer(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TOKEN_REFRESH_BUFFER", "2m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.Token.RefreshBuffer)
}
