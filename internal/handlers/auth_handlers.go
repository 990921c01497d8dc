package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sheetlog/sheetlog/internal/models"
	"github.com/sheetlog/sheetlog/internal/service"
	"github.com/sirupsen/logrus"
)

const stateCookieName = "oauth_state"

// TokenManager is the credential lifecycle surface the auth flow consumes.
type TokenManager interface {
	Exchange(ctx context.Context, code string) (*models.Credential, error)
	ResolveIdentity(ctx context.Context, cred *models.Credential) (string, error)
	Store(ctx context.Context, identity string, cred *models.Credential) error
	GetValidCredential(ctx context.Context, identity string) (*models.Credential, error)
}

// AuthURLBuilder builds the provider consent URL for a state parameter.
type AuthURLBuilder interface {
	AuthCodeURL(state string) string
}

type AuthHandlers struct {
	tokens     TokenManager
	urls       AuthURLBuilder
	successURL string
	logger     *logrus.Logger
}

func NewAuthHandlers(tokens TokenManager, urls AuthURLBuilder, successURL string, logger *logrus.Logger) *AuthHandlers {
	return &AuthHandlers{
		tokens:     tokens,
		urls:       urls,
		successURL: successURL,
		logger:     logger,
	}
}

type AuthStartResponse struct {
	AuthURL string `json:"auth_url"`
}

type AuthCallbackResponse struct {
	Identity string    `json:"identity"`
	Expiry   time.Time `json:"expiry"`
}

type AuthStatusResponse struct {
	Connected bool       `json:"connected"`
	Identity  string     `json:"identity,omitempty"`
	Expiry    *time.Time `json:"expiry,omitempty"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// wantsJSON is the explicit client declaration of response format. The old
// behavior of sniffing a ChatGPT referer substring is intentionally not
// carried over.
func wantsJSON(r *http.Request) bool {
	return r.URL.Query().Get("format") == "json"
}

// Start begins the authorization flow: a fresh state parameter, pinned in a
// short-lived cookie, and the provider consent URL.
func (h *AuthHandlers) Start(w http.ResponseWriter, r *http.Request) {
	state := uuid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	authURL := h.urls.AuthCodeURL(state)

	if wantsJSON(r) {
		h.respondWithJSON(w, http.StatusOK, AuthStartResponse{AuthURL: authURL})
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback receives the provider redirect and runs the exchange → resolve →
// store sequence. An authorization code is one-shot, so every failure here
// means restarting the flow, except a storage fault, which is reported
// distinctly: auth succeeded but the credential was not saved.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errCode := query.Get("error"); errCode != "" {
		h.logger.WithField("provider_error", errCode).Info("Authorization denied at provider")
		h.respondWithError(w, http.StatusUnauthorized, "AUTH_DENIED", "Authorization was denied, please restart the flow")
		return
	}

	if !h.stateMatches(r) {
		h.respondWithError(w, http.StatusBadRequest, "STATE_MISMATCH", "State parameter mismatch, please restart the flow")
		return
	}

	cred, err := h.tokens.Exchange(r.Context(), query.Get("code"))
	if err != nil {
		h.logger.WithError(err).Warn("Authorization code exchange failed")
		h.respondWithError(w, http.StatusBadRequest, "CODE_REJECTED", "Authorization code was rejected, please restart the flow")
		return
	}

	identity, err := h.tokens.ResolveIdentity(r.Context(), cred)
	if err != nil {
		h.logger.WithError(err).Warn("Identity lookup failed")
		h.respondWithError(w, http.StatusUnauthorized, "IDENTITY_LOOKUP_FAILED", "Could not resolve the account for this credential")
		return
	}

	if err := h.tokens.Store(r.Context(), identity, cred); err != nil {
		// The credential exists but was not saved. Surface that instead of
		// pretending the flow succeeded.
		h.logger.WithError(err).WithField("identity", identity).Error("Credential storage failed after successful auth")
		h.respondWithError(w, http.StatusServiceUnavailable, "STORAGE_FAILED", "Authorization succeeded but the credential could not be saved, please try again")
		return
	}

	h.clearStateCookie(w)

	if wantsJSON(r) {
		h.respondWithJSON(w, http.StatusOK, AuthCallbackResponse{Identity: identity, Expiry: cred.Expiry})
		return
	}

	http.Redirect(w, r, h.successURL, http.StatusFound)
}

// Status reports whether a usable credential exists for an identity, without
// ever exposing token material. A refresh happens transparently when needed.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		h.respondWithError(w, http.StatusBadRequest, "MISSING_IDENTITY", "identity query parameter is required")
		return
	}

	cred, err := h.tokens.GetValidCredential(r.Context(), identity)
	if err != nil {
		var perr *service.PersistenceError
		if errors.As(err, &perr) {
			h.respondWithError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Credential store is unavailable, please retry")
			return
		}
		h.respondWithJSON(w, http.StatusOK, AuthStatusResponse{Connected: false})
		return
	}

	h.respondWithJSON(w, http.StatusOK, AuthStatusResponse{
		Connected: true,
		Identity:  cred.Identity,
		Expiry:    &cred.Expiry,
	})
}

func (h *AuthHandlers) stateMatches(r *http.Request) bool {
	state := r.URL.Query().Get("state")
	if state == "" {
		return false
	}
	cookie, err := r.Cookie(stateCookieName)
	if err != nil {
		return false
	}
	return cookie.Value == state
}

func (h *AuthHandlers) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

func (h *AuthHandlers) respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (h *AuthHandlers) respondWithError(w http.ResponseWriter, status int, code, message string) {
	h.respondWithJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
