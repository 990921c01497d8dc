package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sheetlog/sheetlog/internal/config"
	"github.com/sheetlog/sheetlog/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const defaultUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// GoogleProvider talks to Google's OAuth2 endpoints. It holds configuration
// only; an oauth2.Config is built fresh per call, so there is no shared
// client state between requests.
type GoogleProvider struct {
	cfg        *config.GoogleConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewGoogleProvider(cfg *config.GoogleConfig, logger *logrus.Logger) *GoogleProvider {
	return &GoogleProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

func (p *GoogleProvider) oauthConfig() *oauth2.Config {
	endpoint := google.Endpoint
	if p.cfg.AuthURL != "" || p.cfg.TokenURL != "" {
		endpoint = oauth2.Endpoint{AuthURL: p.cfg.AuthURL, TokenURL: p.cfg.TokenURL}
	}

	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  p.cfg.RedirectURL,
		Scopes:       p.cfg.Scopes,
		Endpoint:     endpoint,
	}
}

// AuthCodeURL builds the consent page URL. Offline access plus forced
// consent so Google issues a refresh token on first authorization.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.oauthConfig().AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange trades a one-shot authorization code for tokens.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*models.Credential, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.oauthConfig().Exchange(ctx, code)
	if err != nil {
		p.logger.WithError(err).Warn("Authorization code exchange rejected")
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	cred := credentialFromToken(token)
	if idToken, ok := token.Extra("id_token").(string); ok {
		cred.IDToken = idToken
	}
	return cred, nil
}

// Refresh mints a new access token from a refresh token. Google usually does
// not reissue the refresh token here; the returned credential carries it only
// when the provider did.
func (p *GoogleProvider) Refresh(ctx context.Context, refreshToken string) (*models.Credential, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	source := p.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		p.logger.WithError(err).Warn("Refresh token rejected")
		return nil, fmt.Errorf("failed to refresh access token: %w", err)
	}

	cred := credentialFromToken(token)
	if cred.RefreshToken == refreshToken {
		// TokenSource echoes the input refresh token; report it as
		// not-reissued so storage merge semantics apply uniformly.
		cred.RefreshToken = ""
	}
	return cred, nil
}

// Identity resolves the account email for a credential. The id_token issued
// with the exchange already carries the email claim, so decode that first
// and only fall back to the userinfo endpoint when it is absent. The
// id_token arrived directly from the token endpoint over TLS, which is why
// a local signature check is not repeated here.
func (p *GoogleProvider) Identity(ctx context.Context, cred *models.Credential) (string, error) {
	if cred.IDToken != "" {
		email, err := emailFromIDToken(cred.IDToken)
		if err == nil {
			return email, nil
		}
		p.logger.WithError(err).Debug("Falling back to userinfo endpoint")
	}

	return p.userInfoEmail(ctx, cred.AccessToken)
}

type idTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

func emailFromIDToken(idToken string) (string, error) {
	var claims idTokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, &claims); err != nil {
		return "", fmt.Errorf("failed to parse id_token: %w", err)
	}
	if claims.Email == "" || !claims.EmailVerified {
		return "", fmt.Errorf("id_token carries no verified email")
	}
	return claims.Email, nil
}

func (p *GoogleProvider) userInfoEmail(ctx context.Context, accessToken string) (string, error) {
	userInfoURL := p.cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = defaultUserInfoURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userInfoURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call userinfo endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo endpoint returned status %d", resp.StatusCode)
	}

	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("failed to decode userinfo response: %w", err)
	}
	if info.Email == "" {
		return "", fmt.Errorf("userinfo response carries no email")
	}

	return info.Email, nil
}

func credentialFromToken(token *oauth2.Token) *models.Credential {
	return &models.Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}
}
