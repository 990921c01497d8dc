package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sheetlog/sheetlog/internal/config"
	"github.com/sheetlog/sheetlog/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testProvider(t *testing.T, handler http.Handler) (*GoogleProvider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.GoogleConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/auth/google/callback",
		Scopes:       []string{"openid", "email"},
		AuthURL:      srv.URL + "/auth",
		TokenURL:     srv.URL + "/token",
		UserInfoURL:  srv.URL + "/userinfo",
	}
	return NewGoogleProvider(cfg, testLogger()), srv
}

func signedIDToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}

func TestAuthCodeURL(t *testing.T) {
	p, srv := testProvider(t, http.NotFoundHandler())

	raw := p.AuthCodeURL("state-123")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/auth", u.Scheme+"://"+u.Host+u.Path)
	q := u.Query()
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
}

func TestExchange(t *testing.T) {
	idToken := signedIDToken(t, jwt.MapClaims{"email": "a@x.com", "email_verified": true})

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.FormValue("grant_type") != "authorization_code" || r.FormValue("code") != "code-1" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "AT1",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "RT1",
			"id_token":      idToken,
		})
	})

	p, _ := testProvider(t, mux)

	cred, err := p.Exchange(context.Background(), "code-1")
	require.NoError(t, err)
	assert.Equal(t, "AT1", cred.AccessToken)
	assert.Equal(t, "RT1", cred.RefreshToken)
	assert.Equal(t, idToken, cred.IDToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), cred.Expiry, time.Minute)
}

func TestExchange_RejectedCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	})

	p, _ := testProvider(t, mux)

	_, err := p.Exchange(context.Background(), "already-used")
	assert.Error(t, err)
}

func TestRefresh_TokenNotReissued(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.FormValue("grant_type"))
		assert.Equal(t, "RT1", r.FormValue("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "AT2",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})

	p, _ := testProvider(t, mux)

	cred, err := p.Refresh(context.Background(), "RT1")
	require.NoError(t, err)
	assert.Equal(t, "AT2", cred.AccessToken)
	assert.Empty(t, cred.RefreshToken, "an echoed refresh token must read as not-reissued")
}

func TestRefresh_TokenReissued(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "AT2",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "RT2",
		})
	})

	p, _ := testProvider(t, mux)

	cred, err := p.Refresh(context.Background(), "RT1")
	require.NoError(t, err)
	assert.Equal(t, "RT2", cred.RefreshToken)
}

func TestRefresh_Revoked(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	})

	p, _ := testProvider(t, mux)

	_, err := p.Refresh(context.Background(), "RT-revoked")
	assert.Error(t, err)
}

func TestIdentity_FromIDToken(t *testing.T) {
	p, _ := testProvider(t, http.NotFoundHandler())

	cred := &models.Credential{
		AccessToken: "AT1",
		IDToken:     signedIDToken(t, jwt.MapClaims{"email": "a@x.com", "email_verified": true}),
	}

	// The userinfo endpoint 404s, so a result proves the id_token path.
	identity, err := p.Identity(context.Background(), cred)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", identity)
}

func TestIdentity_UnverifiedEmailFallsBack(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer AT1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"email":"b@x.com"}`))
	})

	p, _ := testProvider(t, mux)

	cred := &models.Credential{
		AccessToken: "AT1",
		IDToken:     signedIDToken(t, jwt.MapClaims{"email": "a@x.com", "email_verified": false}),
	}

	identity, err := p.Identity(context.Background(), cred)
	require.NoError(t, err)
	assert.Equal(t, "b@x.com", identity)
}

func TestIdentity_UserInfoFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"email":"b@x.com"}`))
	})

	p, _ := testProvider(t, mux)

	identity, err := p.Identity(context.Background(), &models.Credential{AccessToken: "AT1"})
	require.NoError(t, err)
	assert.Equal(t, "b@x.com", identity)
}

func TestIdentity_ProviderRejectsToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	p, _ := testProvider(t, mux)

	_, err := p.Identity(context.Background(), &models.Credential{AccessToken: "AT-bad"})
	assert.Error(t, err)
}

func TestIdentity_MissingEmail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	})

	p, _ := testProvider(t, mux)

	_, err := p.Identity(context.Background(), &models.Credential{AccessToken: "AT1"})
	assert.Error(t, err)
}
